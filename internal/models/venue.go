package models

import "time"

// DayHours is one weekday's operating window. Open == Close means closed.
type DayHours struct {
	Weekday string `yaml:"weekday" json:"weekday"`
	Open    string `yaml:"open" json:"open"`   // "11:00"
	Close   string `yaml:"close" json:"close"` // "23:00"
}

// RecommendedWindow marks a stretch of the day the venue wants to fill first.
type RecommendedWindow struct {
	From string `yaml:"from" json:"from"`
	To   string `yaml:"to" json:"to"`
}

// Venue is the single hospitality location this service schedules for.
type Venue struct {
	ID       string     `yaml:"id" json:"id"`
	Name     string     `yaml:"name" json:"name"`
	Timezone string     `yaml:"timezone" json:"timezone"`
	Hours    []DayHours `yaml:"hours" json:"hours"`
}

// Resource is one bookable unit: a dining table, a bowling lane or a
// gaming time block. Lanes and time blocks are exclusive-occupancy.
type Resource struct {
	ID        int64     `yaml:"id" json:"id"`
	Name      string    `yaml:"name" json:"name"`
	Kind      string    `yaml:"kind" json:"kind"`
	Capacity  int       `yaml:"capacity" json:"capacity"`
	SortOrder int64     `yaml:"sort_order" json:"sort_order"`
	Status    string    `yaml:"status" json:"status"`
	CreatedAt time.Time `yaml:"-" json:"created_at"`
	UpdatedAt time.Time `yaml:"-" json:"updated_at"`
}

// Exclusive reports whether the resource admits exactly one reservation
// at a time.
func (r *Resource) Exclusive() bool {
	return r.Kind == KindLane || r.Kind == KindTimeBlock
}

// Session reports whether the resource has a fixed-end occupancy window
// subject to warning/extension handling.
func (r *Resource) Session() bool {
	return r.Exclusive()
}
