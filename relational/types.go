// Package relational stores the learning-path domain's tabular state in
// Postgres: learning paths, tickets and their sparse custom fields, concept
// records, prerequisites and per-student progress. It supersedes the
// teacher's markdown-RAG schema in database/schema.go.
package relational

import "time"

// LearningPath is a single "build me a path through these chunks" request.
type LearningPath struct {
	ID         string
	UserID     string
	Query      string
	Title      string
	Difficulty string
	CreatedAt  time.Time
}

// Ticket is a Trac-style work item: one per chunk in a learning path, the
// unit a student works through to learn a concept.
type Ticket struct {
	ID          int64
	Type        string
	Summary     string
	Description string
	Status      string
	Resolution  string
	Milestone   string
	Owner       string
	Reporter    string
	Keywords    string
	Time        time.Time
	ChangeTime  time.Time
}

// TicketCustomField is one name/value pair in Trac's sparse custom-field
// table. Values are always stored as text; callers convert.
type TicketCustomField struct {
	TicketID int64
	Name     string
	Value    string
}

// ConceptRecord associates a ticket with the textbook concept it teaches,
// in the order it appears in its originating learning path.
type ConceptRecord struct {
	ID            string
	LearningPathID string
	TicketID      int64
	ConceptName   string
	ChunkID       string
	SequenceOrder int
}

// Prerequisite is a directed "must learn From before To" edge between two
// concept records, mirrored here for relational querying alongside the
// graph store's own prerequisite edges.
type Prerequisite struct {
	ID              string
	FromConceptID   string
	ToConceptID     string
	RequirementType string
}

// Progress is a student's mastery state for one concept, keyed by
// (student, concept). Time and attempts accumulate across evaluations.
type Progress struct {
	StudentID        string
	ConceptID        string
	Status           string
	TimeSpentMinutes int
	AttemptCount     int
	CompletedAt      *time.Time
	Notes            string
	UpdatedAt        time.Time
}

// TicketChange is one audit-log row. Store.UpdateTicketStatus appends one
// row for the status and one for the resolution; owner changes are not
// logged.
type TicketChange struct {
	TicketID int64
	Time     time.Time
	Author   string
	Field    string
	OldValue string
	NewValue string
}
