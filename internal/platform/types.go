package platform

// Student is a simulated student in a dataset.
type Student struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	GradeLevel int    `json:"grade_level"`
}

// Topic is a subject topic assigned to a student.
type Topic struct {
	ID          string `json:"id"`
	SubjectID   string `json:"subject_id"`
	SubjectName string `json:"subject_name"`
	Name        string `json:"name"`
	GradeLevel  int    `json:"grade_level"`
}

// Conversation is the platform's answer to starting an interaction.
// MaxTurns is the platform-side turn budget for the conversation.
type Conversation struct {
	ConversationID         string `json:"conversation_id"`
	StudentID              string `json:"student_id"`
	TopicID                string `json:"topic_id"`
	MaxTurns               int    `json:"max_turns"`
	ConversationsRemaining *int   `json:"conversations_remaining,omitempty"`
}

// Reply is the simulated student's answer to one tutor message.
type Reply struct {
	ConversationID  string `json:"conversation_id"`
	InteractionID   string `json:"interaction_id"`
	StudentResponse string `json:"student_response"`
	TurnNumber      int    `json:"turn_number"`
	IsComplete      bool   `json:"is_complete"`
}

// Prediction is one predicted level submitted for MSE scoring.
type Prediction struct {
	StudentID      string  `json:"student_id"`
	TopicID        string  `json:"topic_id"`
	PredictedLevel float64 `json:"predicted_level"`
}

// MSEResult is the platform's scoring of a prediction batch. Raw keeps the
// full response body since the platform adds fields freely.
type MSEResult struct {
	MSEScore float64
	Raw      map[string]any
}

// Datasets ("set types") accepted by the platform.
const (
	SetMiniDev = "mini_dev"
	SetDev     = "dev"
	SetTest    = "test"
)
