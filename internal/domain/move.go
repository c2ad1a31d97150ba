package domain

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/akshatjain2002sept/connect-4-multi/internal/board"
	"github.com/akshatjain2002sept/connect-4-multi/internal/obslog"
)

// Move is one entry of a game's append-only log.
type Move struct {
	Seq    int          `json:"seq"`
	Column int          `json:"column"`
	Row    int          `json:"row"`
	Player board.Player `json:"player"`
	UserID string       `json:"userId"`
	At     time.Time    `json:"at"`
}

// MoveLog is stored as a JSON array in a text column.
type MoveLog []Move

// GormDataType keeps the column portable across dialects.
func (MoveLog) GormDataType() string { return "text" }

// Value implements driver.Valuer.
func (l MoveLog) Value() (driver.Value, error) {
	if len(l) == 0 {
		return "[]", nil
	}
	b, err := json.Marshal([]Move(l))
	if err != nil {
		return nil, fmt.Errorf("encode move log: %w", err)
	}
	return string(b), nil
}

// Scan implements sql.Scanner. Unreadable data decodes to an empty log so a
// damaged row never breaks a read path.
func (l *MoveLog) Scan(src any) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*l = MoveLog{}
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		obslog.L().Warn("move_log_decode_failed", zap.String("type", fmt.Sprintf("%T", src)))
		*l = MoveLog{}
		return nil
	}
	var moves []Move
	if err := json.Unmarshal(raw, &moves); err != nil {
		obslog.L().Warn("move_log_decode_failed", zap.Error(err), zap.Int("bytes", len(raw)))
		*l = MoveLog{}
		return nil
	}
	if moves == nil {
		moves = []Move{}
	}
	*l = moves
	return nil
}

// Append returns a new log with m added; the receiver is left untouched.
func (l MoveLog) Append(m Move) MoveLog {
	out := make(MoveLog, len(l), len(l)+1)
	copy(out, l)
	return append(out, m)
}

// Last returns the most recent move.
func (l MoveLog) Last() (Move, bool) {
	if len(l) == 0 {
		return Move{}, false
	}
	return l[len(l)-1], true
}
