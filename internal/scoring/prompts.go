package scoring

import "strings"

func buildExtractionPrompt() string {
	var sb strings.Builder
	sb.WriteString("You are an exam sheet reader. You receive a photo or scan of a graded paper exam.\n\n")
	sb.WriteString("The sheet contains a handwritten or printed student number and a score table ")
	sb.WriteString("where the grader wrote the points awarded for each numbered question.\n\n")
	sb.WriteString("INSTRUCTIONS:\n")
	sb.WriteString("- Read the student number exactly as written. Do not guess missing digits.\n")
	sb.WriteString("- Read the awarded score for every question that has one. Skip blank cells.\n")
	sb.WriteString("- Scores are non-negative numbers; decimals are allowed.\n")
	sb.WriteString("- If the sheet is unreadable or the student number is missing, return an empty student_number.\n")
	sb.WriteString("\nRespond ONLY with a JSON object with these fields:\n")
	sb.WriteString(`{"student_number": "<string>", "scores": [{"question": <number>, "score": <number>}]}`)
	sb.WriteString("\n")
	return sb.String()
}
