package models

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Option is one poll choice. Option order is fixed at creation and the
// option's position is what students vote on.
type Option struct {
	Text  string `json:"text"`
	Votes int    `json:"votes"`
}

// Poll is one timed multiple-choice question. The answers map enforces a
// single vote per student; option vote counts always equal the number of
// answers recorded for that index. Once closed a poll never mutates again.
// MaxTimeLimit bounds a poll's time limit in seconds. It keeps the deadline
// representable as a time.Duration and rejects nonsense limits at the door.
const MaxTimeLimit = 3600

type Poll struct {
	ID        string
	SessionID string
	Question  string
	Options   []Option
	TimeLimit int // seconds
	StartedAt time.Time
	EndedAt   time.Time // zero while active
	Active    bool

	answers map[string]int // studentID -> option index
}

// NewPoll validates the poll definition and returns an active poll with zero
// votes. Validation failures wrap ErrValidation.
func NewPoll(sessionID, question string, options []string, timeLimit int) (*Poll, error) {
	if strings.TrimSpace(question) == "" {
		return nil, fmt.Errorf("%w: question is empty", ErrValidation)
	}
	if len(options) < 2 {
		return nil, fmt.Errorf("%w: need at least two options, got %d", ErrValidation, len(options))
	}
	if timeLimit <= 0 {
		return nil, fmt.Errorf("%w: time limit must be positive, got %d", ErrValidation, timeLimit)
	}
	if timeLimit > MaxTimeLimit {
		return nil, fmt.Errorf("%w: time limit must be at most %d seconds, got %d", ErrValidation, MaxTimeLimit, timeLimit)
	}
	opts := make([]Option, len(options))
	for i, text := range options {
		opts[i] = Option{Text: text}
	}
	return &Poll{
		ID:        uuid.New().String(),
		SessionID: sessionID,
		Question:  question,
		Options:   opts,
		TimeLimit: timeLimit,
		StartedAt: time.Now(),
		Active:    true,
		answers:   make(map[string]int),
	}, nil
}

// RecordVote is the single admission gate for votes. It returns false with no
// mutation when the poll is closed, the student already voted, or the option
// index is out of range.
func (p *Poll) RecordVote(studentID string, optionIndex int) bool {
	if !p.Active {
		return false
	}
	if _, dup := p.answers[studentID]; dup {
		return false
	}
	if optionIndex < 0 || optionIndex >= len(p.Options) {
		return false
	}
	p.answers[studentID] = optionIndex
	p.Options[optionIndex].Votes++
	return true
}

// HasAnswer reports whether the student already has a recorded vote.
func (p *Poll) HasAnswer(studentID string) bool {
	_, ok := p.answers[studentID]
	return ok
}

// VoteCount returns the number of recorded votes.
func (p *Poll) VoteCount() int { return len(p.answers) }

// TimeRemaining returns the seconds left before the deadline, 0 once closed.
func (p *Poll) TimeRemaining() float64 {
	if !p.Active {
		return 0
	}
	elapsed := time.Since(p.StartedAt).Seconds()
	return math.Max(0, float64(p.TimeLimit)-elapsed)
}

/// Close ends the poll and stamps the end time. Idempotent: closing a closed
// poll is a no-op, which is what makes the two closure triggers safe to race.
func (p *Poll) Close() {
	if !p.Active {
		return
	}
	p.Active = false
	p.EndedAt = time.Now()
}

// OptionResult is one option in an aggregated results view.
type OptionResult struct {
	Text       string `json:"text"`
	Votes      int    `json:"votes"`
	Percentage int    `json:"percentage"`
}

// PollResults is the aggregated results view sent to the coordinator on every
// vote and to the whole session on closure. The snapshot appended to history
// is never recomputed.
type PollResults struct {
	ID            string         `json:"id"`
	Question      string         `json:"question"`
	Options       []OptionResult `json:"options"`
	TotalVotes    int            `json:"totalVotes"`
	IsActive      bool           `json:"isActive"`
	TimeRemaining float64        `json:"timeRemaining"`
}

// Results computes the aggregated view. Percentages are rounded and all zero
// when no votes were cast.
func (p *Poll) Results() *PollResults {
	total := 0
	for _, opt := range p.Options {
		total += opt.Votes
	}
	options := make([]OptionResult, len(p.Options))
	for i, opt := range p.Options {
		pct := 0
		if total > 0 {
			pct = int(math.Round(float64(opt.Votes) / float64(total) * 100))
		}
		options[i] = OptionResult{Text: opt.Text, Votes: opt.Votes, Percentage: pct}
	}
	return &PollResults{
		ID:            p.ID,
		Question:      p.Question,
		Options:       options,
		TotalVotes:    total,
		IsActive:      p.Active,
		TimeRemaining: p.TimeRemaining(),
	}
}

// PromptOption is one option as shown to students: text only, never counts.
type PromptOption struct {
	Text string `json:"text"`
}

// PollPrompt is the view of an active poll sent to students, including a late
// joiner. It carries the remaining time but no vote data.
type PollPrompt struct {
	ID            string         `json:"id"`
	Question      string         `json:"question"`
	Options       []PromptOption `json:"options"`
	TimeRemaining float64        `json:"timeRemaining"`
}

// Prompt returns the student-facing view of the poll.
func (p *Poll) Prompt() *PollPrompt {
	options := make([]PromptOption, len(p.Options))
	for i, opt := range p.Options {
		options[i] = PromptOption{Text: opt.Text}
	}
	return &PollPrompt{
		ID:            p.ID,
		Question:      p.Question,
		Options:       options,
		TimeRemaining: p.TimeRemaining(),
	}
}
