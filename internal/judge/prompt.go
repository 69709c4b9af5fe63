package judge

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"
)

const strategySystemPrompt = `You are planning an adaptive assessment of a school student on a single topic. The goal is to find the student's understanding level (1-5) in as few questions as possible.

Levels:
1 Struggling: needs fundamentals
2 Below grade: frequent mistakes
3 At grade: core concepts are fine
4 Above grade: occasional gaps
5 Advanced: ready for more

Plan the next question like a binary search over the levels:
- After a correct answer, probe higher.
- After an incorrect answer, probe lower.
- After a partial answer, stay at the same level on an adjacent concept.
- On the first turn, probe at grade level.
Levels 1-2 map to basic concepts, 3 to grade-appropriate work, 4-5 to advanced application.`

var strategyUserTemplate = template.Must(template.New("strategy").Parse(`Subject: {{.Topic.SubjectName}}
Topic: {{.Topic.Name}}
Grade: {{.Topic.GradeLevel}}
Turn: {{.Turn}} of {{.MaxTurns}}
Current estimate: level {{.LevelEstimate}} (confidence {{printf "%.2f" .LevelConfidence}})
{{- if .PreviousAnalysis}}

Last question ({{.PreviousDifficulty}}): {{.PreviousQuestion}}
Student answered: {{.PreviousResponse}}
Graded: {{.PreviousAnalysis.Correctness}}
{{- range .PreviousAnalysis.KnowledgeGaps}}
- gap: {{.}}
{{- end}}
{{- range .PreviousAnalysis.Strengths}}
- strength: {{.}}
{{- end}}
{{- else}}

No questions asked yet.
{{- end}}

Progress:
Correct streak: {{.Stats.ConsecutiveCorrect}}
Incorrect streak: {{.Stats.ConsecutiveIncorrect}}
Estimate stable for: {{.Stats.StabilityCount}} turns
Student confidence trend: {{.Stats.ConfidenceTrend}}`))

const difficultySystemPrompt = `You choose the difficulty of the next assessment question.

EASY targets levels 1-2, MEDIUM targets level 3, HARD targets levels 4-5.
The first question is always MEDIUM. Move one band at a time unless the evidence is overwhelming.`

const composeSystemPrompt = `You are a warm, concise tutor talking with a school student. Write the next message of the conversation.

Rules:
- Keep it to 2-4 short sentences.
- If the student just answered, give brief feedback on that answer first.
- Then ask exactly one focused question at the requested difficulty.
- Do not reveal the answer to the new question.
- Use plain text. No markdown, no LaTeX.`

const analysisSystemPrompt = `You grade a school student's answer to a tutor question.

Decide whether the answer is correct, partial or incorrect. Rate how confident the student sounded from 1 (very unsure) to 5 (certain). List the knowledge gaps and strengths the answer shows; use empty lists when there are none. Keep reasoning to one or two sentences.`

var analysisUserTemplate = template.Must(template.New("analysis").Parse(`Subject: {{.Topic.SubjectName}}
Topic: {{.Topic.Name}}
Grade: {{.Topic.GradeLevel}}
Difficulty: {{.Difficulty}}

Question: {{.Question}}
Student answer: {{.Response}}`))

const inferenceSystemPrompt = `You estimate a school student's understanding level on one topic from an assessment transcript.

Levels:
1 Struggling: needs fundamentals
2 Below grade: frequent mistakes
3 At grade: core concepts are fine
4 Above grade: occasional gaps
5 Advanced: ready for more

Weigh harder questions more than easy ones. A correct hard answer is strong evidence for 4-5; a wrong easy answer is strong evidence for 1-2. Report confidence between 0 and 1; it should grow as consistent evidence accumulates.`

const scoringSystemPrompt = `You grade a finished tutoring session. Based on the questions the tutor asked and the student's answers, place the student on this scale:

Struggling: needs fundamentals
Below-grade: frequent mistakes
At-grade: core concepts are fine
Above-grade: occasional gaps
Advanced: ready for more`

func render(t *template.Template, data any) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func buildDifficultyMessage(in TutorInput, strategy Strategy, suggested Difficulty) string {
	var b strings.Builder

	b.WriteString(fmt.Sprintf("Topic: %s (grade %d)\n", in.Topic.Name, in.Topic.GradeLevel))
	b.WriteString(fmt.Sprintf("Turn: %d of %d\n", in.Turn, in.MaxTurns))
	b.WriteString(fmt.Sprintf("Current estimate: level %d (confidence %.2f)\n", in.LevelEstimate, in.LevelConfidence))
	b.WriteString(fmt.Sprintf("Planned probe: %s, levels %d-%d, skill %q\n",
		strategy.ProbeDirection, strategy.LevelRangeLow, strategy.LevelRangeHigh, strategy.TargetSkill))

	if in.PreviousAnalysis != nil {
		b.WriteString(fmt.Sprintf("Last difficulty: %s, graded %s\n", in.PreviousDifficulty, in.PreviousAnalysis.Correctness))
	} else {
		b.WriteString("This is the first question.\n")
	}
	b.WriteString(fmt.Sprintf("Baseline suggestion: %s\n", suggested))

	if len(in.Stats.DifficultyTally) > 0 {
		b.WriteString("\nQuestions asked so far:\n")
		for _, d := range AllDifficulties {
			b.WriteString(fmt.Sprintf("- %s: %d\n", d, in.Stats.DifficultyTally[d]))
		}
	}
	return b.String()
}

func buildComposeMessage(in TutorInput, strategy Strategy, difficulty Difficulty) string {
	var b strings.Builder

	b.WriteString(fmt.Sprintf("Subject: %s\nTopic: %s\nGrade: %d\n", in.Topic.SubjectName, in.Topic.Name, in.Topic.GradeLevel))
	b.WriteString(fmt.Sprintf("Skill to probe: %s\n", strategy.TargetSkill))
	b.WriteString(fmt.Sprintf("Difficulty: %s\n", difficulty))

	if in.PreviousAnalysis != nil {
		b.WriteString(fmt.Sprintf("\nPrevious question: %s\n", in.PreviousQuestion))
		b.WriteString(fmt.Sprintf("Student answered: %s\n", in.PreviousResponse))
		b.WriteString(fmt.Sprintf("That answer was %s.\n", in.PreviousAnalysis.Correctness))
	} else {
		b.WriteString("\nThis is the opening message. Greet the student briefly.\n")
	}
	return b.String()
}

// transcript renders history as numbered exchanges. withAnalysis adds the
// per-turn grading, which the final scorer does not see.
func transcript(history []TurnRecord, withAnalysis bool) string {
	var b strings.Builder
	for _, t := range history {
		b.WriteString(fmt.Sprintf("Turn %d (%s)\n", t.Turn, t.Difficulty))
		b.WriteString(fmt.Sprintf("Q: %s\n", t.Question))
		b.WriteString(fmt.Sprintf("A: %s\n", t.StudentResponse))
		if withAnalysis {
			b.WriteString(fmt.Sprintf("Graded: %s, student confidence %d/5\n", t.Analysis.Correctness, t.Analysis.ConfidenceLevel))
			if len(t.Analysis.KnowledgeGaps) > 0 {
				b.WriteString(fmt.Sprintf("Gaps: %s\n", strings.Join(t.Analysis.KnowledgeGaps, "; ")))
			}
		}
		b.WriteString("\n")
	}
	return b.String()
}

func buildInferenceMessage(in InferenceInput) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("Subject: %s\nTopic: %s\nGrade: %d\n", in.Topic.SubjectName, in.Topic.Name, in.Topic.GradeLevel))
	b.WriteString(fmt.Sprintf("Previous estimate: level %d\n\n", in.PreviousEstimate))
	b.WriteString(transcript(in.History, true))
	return b.String()
}

func buildScoringMessage(in ScoringInput) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("Topic: %s (grade %d)\n\n", in.Topic.Name, in.Topic.GradeLevel))
	b.WriteString(transcript(in.History, false))
	return b.String()
}
