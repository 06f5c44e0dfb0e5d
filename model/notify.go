package model

import "time"

// Player is a member as held by the player directory.
type Player struct {
	ID    string
	Name  string
	Email string
}

// Email is a plain-text message.
type Email struct {
	From    string
	To      string
	Subject string
	Body    string
}

// FinanceTask is a request for the finance team to pay out prize money.
type FinanceTask struct {
	Group         string
	Name          string
	AssigneeEmail string
	Status        string
	Deadline      time.Time
}
