package store

import "time"

const (
	StatusPending  = "pending"
	StatusApproved = "approved"
	StatusRejected = "rejected"
	StatusMerged   = "merged"
)

type User struct {
	ID          string
	DisplayName string
	Email       string
	Role        string
	IsActive    bool
	CreatedAt   time.Time
}

type Idea struct {
	ID                 string
	Title              string
	Description        string
	Domain             string
	Tags               []string
	Status             string
	SubmittedBy        string
	Contributors       []string
	OriginalSubmitters []string
	Comments           []Comment
	Feedback           string
	ReviewedBy         string
	ReviewedAt         *time.Time
	MergedInto         string
	MergedFrom         []string
	// Version is bumped on every write; updates must present the version
	// they read.
	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Comment is one entry of an idea's append-only comment log. Deleted
// comments keep their row with DeletedAt set.
type Comment struct {
	Seq       int64
	ID        string
	IdeaID    string
	Author    string
	Text      string
	CreatedAt time.Time
	DeletedAt *time.Time
	DeletedBy string
}

type Notification struct {
	ID           string
	Recipient    string
	Sender       string
	Type         string
	Title        string
	Message      string
	RelatedIdea  string
	RelatedGroup string
	IsRead       bool
	ReadAt       *time.Time
	CreatedAt    time.Time
}

// MergeHistory is the immutable audit record of one merge.
type MergeHistory struct {
	ID           string
	FinalIdea    string
	MergedIdeas  []string
	MergedBy     string
	Contributors []string
	CreatedAt    time.Time
}

// MergePlan is everything a merge writes, applied in one transaction.
type MergePlan struct {
	Consolidated Idea
	// Sources carry their new state and the version they were read at.
	Sources []Idea
	History MergeHistory
}

type IdeaFilter struct {
	Statuses    []string
	Domain      string
	SubmittedBy string
	Contributor string
	Limit       int
	Offset      int
}

type NotificationFilter struct {
	UnreadOnly bool
	Limit      int
	Offset     int
}
