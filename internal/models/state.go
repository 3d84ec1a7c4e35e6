package models

import "time"

// State 资源状态区间，end_time 为空表示当前状态
type State struct {
	ID         int64      `json:"id" db:"id"`
	Kind       string     `json:"kind" db:"kind"`
	ResourceID string     `json:"resource_id" db:"resource_id"`
	State      string     `json:"state" db:"state"` // online, asleep, offline, ok, failed
	Reason     string     `json:"reason,omitempty" db:"reason"`
	StartTime  time.Time  `json:"start_time" db:"start_time"`
	EndTime    *time.Time `json:"end_time,omitempty" db:"end_time"`
}
