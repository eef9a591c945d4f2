package domain

import (
	"math"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// SESSION STATUS
// ══════════════════════════════════════════════════════════════════════════════

// SessionStatus is derived from the completion timestamp, never stored.
type SessionStatus string

const (
	StatusInProgress SessionStatus = "in_progress"
	StatusCompleted  SessionStatus = "completed"
)

// ══════════════════════════════════════════════════════════════════════════════
// CURRICULUM
// ══════════════════════════════════════════════════════════════════════════════

// UnknownCurriculumName is the display fallback for any curriculum level
// that cannot be resolved. Unresolved names are never an error.
const UnknownCurriculumName = "Unknown"

// CurriculumKind identifies a node's level in the curriculum hierarchy.
type CurriculumKind string

const (
	CurriculumGradeLevel CurriculumKind = "grade_level"
	CurriculumSubject    CurriculumKind = "subject"
	CurriculumTopic      CurriculumKind = "topic"
	CurriculumSubTopic   CurriculumKind = "sub_topic"
)

// CurriculumNode is one entry in the curriculum hierarchy.
type CurriculumNode struct {
	ID       string         `json:"id"`
	ParentID string         `json:"parentId"`
	Kind     CurriculumKind `json:"kind"`
	Name     string         `json:"name"`
	Position int            `json:"position"`
}

// CurriculumPath locates a practice session within the hierarchy by id.
type CurriculumPath struct {
	GradeLevelID string `json:"gradeLevelId"`
	SubjectID    string `json:"subjectId"`
	TopicID      string `json:"topicId"`
	SubTopicID   string `json:"subTopicId"`
}

// CurriculumNames is the display form of a CurriculumPath. Every level
// defaults to UnknownCurriculumName when unresolved.
type CurriculumNames struct {
	GradeLevel string `json:"gradeLevel"`
	Subject    string `json:"subject"`
	Topic      string `json:"topic"`
	SubTopic   string `json:"subTopic"`
}

// UnknownCurriculumNames returns names with every level unresolved.
func UnknownCurriculumNames() CurriculumNames {
	return CurriculumNames{
		GradeLevel: UnknownCurriculumName,
		Subject:    UnknownCurriculumName,
		Topic:      UnknownCurriculumName,
		SubTopic:   UnknownCurriculumName,
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// PRACTICE SESSIONS
// ══════════════════════════════════════════════════════════════════════════════

// SessionSummary is one practice attempt by a student. The aggregate
// counters (TotalQuestions, CorrectCount, DurationSeconds) come straight
// from the session row, so a summary never requires the answer rows.
type SessionSummary struct {
	ID              string         `json:"id"`
	StudentID       string         `json:"studentId"`
	Curriculum      CurriculumPath `json:"curriculum"`
	TotalQuestions  int            `json:"totalQuestions"`
	CorrectCount    int            `json:"correctCount"`
	DurationSeconds int            `json:"durationSeconds"`
	CreatedAt       time.Time      `json:"createdAt"`
	CompletedAt     *time.Time     `json:"completedAt"`
}

// Status derives the session state from the completion timestamp.
func (s SessionSummary) Status() SessionStatus {
	if s.CompletedAt != nil {
		return StatusCompleted
	}
	return StatusInProgress
}

// IsCompleted reports whether the session has finished.
func (s SessionSummary) IsCompleted() bool {
	return s.CompletedAt != nil
}

// Score returns the rounded percentage of correct answers, or nil when the
// session is still in progress or recorded zero questions. A completed
// session with zero questions has no score, not a zero score.
func (s SessionSummary) Score() *int {
	if s.CompletedAt == nil || s.TotalQuestions <= 0 {
		return nil
	}
	pct := int(math.Round(float64(s.CorrectCount) / float64(s.TotalQuestions) * 100))
	return &pct
}

// DeletedQuestionPrompt replaces the prompt of a question that has been
// removed after students answered it.
const DeletedQuestionPrompt = "[Question has been deleted]"

// AnswerDetail is one answered question inside a session, with the question
// content resolved or replaced by the deleted placeholder.
type AnswerDetail struct {
	ID               string   `json:"id"`
	QuestionID       string   `json:"questionId"`
	Prompt           string   `json:"question"`
	Options          []string `json:"options"`
	CorrectAnswer    string   `json:"correctAnswer"`
	GivenAnswer      string   `json:"givenAnswer"`
	IsCorrect        bool     `json:"isCorrect"`
	TimeSpentSeconds int      `json:"timeSpentSeconds"`
	IsDeleted        bool     `json:"isDeleted"`
}

// DeletedAnswerDetail builds the placeholder view for an answer whose
// question no longer exists.
func DeletedAnswerDetail(answerID, questionID, givenAnswer string, isCorrect bool, timeSpent int) AnswerDetail {
	return AnswerDetail{
		ID:               answerID,
		QuestionID:       questionID,
		Prompt:           DeletedQuestionPrompt,
		Options:          nil,
		GivenAnswer:      givenAnswer,
		IsCorrect:        isCorrect,
		TimeSpentSeconds: timeSpent,
		IsDeleted:        true,
	}
}

// SessionDetail is the denormalized full view of one session. For viewers
// whose subscription tier does not allow detailed results, Answers stays
// empty and DetailGated is true; the summary counters still reflect the
// session row's stored aggregates.
type SessionDetail struct {
	SessionSummary
	Names       CurriculumNames `json:"curriculumNames"`
	Answers     []AnswerDetail  `json:"answers"`
	DetailGated bool            `json:"detailGated"`
}
