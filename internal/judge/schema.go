package judge

import "github.com/abhisek/tutorbench/internal/llm"

func levelProperty(description string) map[string]any {
	return map[string]any{
		"type":        "integer",
		"minimum":     MinLevel,
		"maximum":     MaxLevel,
		"description": description,
	}
}

func stringList(description string) map[string]any {
	return map[string]any{
		"type":        "array",
		"items":       map[string]any{"type": "string"},
		"description": description,
	}
}

// StrategySchema defines the tutor's question planning step.
var StrategySchema = &llm.Schema{
	Name:        "question-strategy",
	Description: "Plan for the next assessment question",
	Definition: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"target_skill": map[string]any{
				"type":        "string",
				"description": "The concept within the topic the next question should probe",
			},
			"reasoning": map[string]any{
				"type":        "string",
				"description": "One or two sentences on why this skill and direction",
			},
			"level_range_low":  levelProperty("Lowest level the next question should discriminate"),
			"level_range_high": levelProperty("Highest level the next question should discriminate"),
			"probe_direction": map[string]any{
				"type":        "string",
				"enum":        []any{string(ProbeHigher), string(ProbeLower), string(ProbeConfirm)},
				"description": "Whether to probe above, below or at the current estimate",
			},
		},
		"required":             []any{"target_skill", "reasoning", "level_range_low", "level_range_high", "probe_direction"},
		"additionalProperties": false,
	},
}

// DifficultySchema defines the difficulty recommendation step.
var DifficultySchema = &llm.Schema{
	Name:        "difficulty-recommendation",
	Description: "Difficulty band for the next assessment question",
	Definition: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"difficulty": map[string]any{
				"type": "string",
				"enum": []any{string(DifficultyEasy), string(DifficultyMedium), string(DifficultyHard)},
			},
			"reasoning": map[string]any{
				"type": "string",
			},
			"adjustment_direction": map[string]any{
				"type": "string",
				"enum": []any{"probe_higher", "probe_lower", "confirm"},
			},
		},
		"required":             []any{"difficulty", "reasoning", "adjustment_direction"},
		"additionalProperties": false,
	},
}

// ComposeSchema defines the message composition step.
var ComposeSchema = &llm.Schema{
	Name:        "tutor-message",
	Description: "The tutor's next message to the student",
	Definition: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"message": map[string]any{
				"type":        "string",
				"description": "Full message sent to the student, including the question",
			},
			"question": map[string]any{
				"type":        "string",
				"description": "The question on its own, or empty when the message asks none",
			},
			"message_type": map[string]any{
				"type": "string",
				"enum": []any{"question", "explanation", "hint", "encouragement", "challenge"},
			},
		},
		"required":             []any{"message", "question", "message_type"},
		"additionalProperties": false,
	},
}

// AnalysisSchema defines the response analysis step.
var AnalysisSchema = &llm.Schema{
	Name:        "response-analysis",
	Description: "Grading of one student response",
	Definition: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"correctness": map[string]any{
				"type": "string",
				"enum": []any{string(CorrectnessCorrect), string(CorrectnessPartial), string(CorrectnessIncorrect)},
			},
			"confidence_level": levelProperty("How confident the student sounded, 1 (unsure) to 5 (certain)"),
			"knowledge_gaps":   stringList("Concepts the student is missing or confuses"),
			"strengths":        stringList("Concepts the student demonstrated"),
			"reasoning": map[string]any{
				"type": "string",
			},
		},
		"required":             []any{"correctness", "confidence_level", "knowledge_gaps", "strengths", "reasoning"},
		"additionalProperties": false,
	},
}

// LevelSchema defines the level inference step.
var LevelSchema = &llm.Schema{
	Name:        "level-estimate",
	Description: "Estimated understanding level after the latest turn",
	Definition: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"estimated_level": levelProperty("1 struggling, 2 below grade, 3 at grade, 4 above grade, 5 advanced"),
			"confidence": map[string]any{
				"type":        "number",
				"minimum":     0.0,
				"maximum":     1.0,
				"description": "Confidence in the estimate (0.0-1.0)",
			},
			"reasoning": map[string]any{
				"type": "string",
			},
		},
		"required":             []any{"estimated_level", "confidence", "reasoning"},
		"additionalProperties": false,
	},
}

// ScoreSchema defines the final scoring step.
var ScoreSchema = &llm.Schema{
	Name:        "final-score",
	Description: "Final grade for a finished assessment transcript",
	Definition: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"score": map[string]any{
				"type": "string",
				"enum": []any{"Struggling", "Below-grade", "At-grade", "Above-grade", "Advanced"},
			},
			"rationale": map[string]any{
				"type": "string",
			},
		},
		"required":             []any{"score", "rationale"},
		"additionalProperties": false,
	},
}
