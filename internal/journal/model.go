package journal

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Session is one run of the engine.
type Session struct {
	ID        uuid.UUID `json:"id" gorm:"type:char(36);primaryKey"`
	CreatedAt time.Time `json:"createdAt"`
	Host      string    `json:"host" gorm:"size:128"`
}

func (*Session) TableName() string {
	return "sessions"
}

// Placement records one completed placement pass.
type Placement struct {
	ID        uint      `json:"id" gorm:"primarykey;autoIncrement"`
	SessionID uuid.UUID `json:"sessionId" gorm:"type:char(36);index"`
	Time      time.Time `json:"time" gorm:"index"`
	Frame     uint64    `json:"frame"`
	HuntKey   string    `json:"huntKey" gorm:"size:16;index"`
	HuntType  string    `json:"huntType" gorm:"size:16"`
	Requested int       `json:"requested"`
	Placed    int       `json:"placed"`
	// Skipped is the JSON list of {id, reason}.
	Skipped datatypes.JSON `json:"skipped"`
}

func (*Placement) TableName() string {
	return "placements"
}

// Collection records one collected loot object.
type Collection struct {
	ID        uint      `json:"id" gorm:"primarykey;autoIncrement"`
	SessionID uuid.UUID `json:"sessionId" gorm:"type:char(36);index"`
	Time      time.Time `json:"time" gorm:"index"`
	Frame     uint64    `json:"frame"`
	PinID     string    `json:"pinId" gorm:"size:128;index"`
	Kind      string    `json:"kind" gorm:"size:32"`
	Source    string    `json:"source" gorm:"size:16"`
	X         float64   `json:"x"`
	Y         float64   `json:"y"`
	Z         float64   `json:"z"`
}

func (*Collection) TableName() string {
	return "collections"
}

// Models lists every journal table for migration.
var Models = []any{
	&Session{},
	&Placement{},
	&Collection{},
}
