package database

import (
	"errors"

	"github.com/lib/pq"
)

var (
	ErrRoomNotFound     = errors.New("room not found")
	ErrDuplicateRoom    = errors.New("host already has an active room")
	ErrChatRoomNotFound = errors.New("chat room not found")
	ErrNotParticipant   = errors.New("user is not a participant of the chat room")
	ErrMessageNotFound  = errors.New("message not found")
)

const (
	pqUniqueViolation     = pq.ErrorCode("23505")
	pqForeignKeyViolation = pq.ErrorCode("23503")
)

func isPqError(err error, code pq.ErrorCode) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == code
	}
	return false
}
