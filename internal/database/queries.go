package database

const (
	activeRoomByHostQuery = "SELECT room_id, host_id, is_active, created_at, updated_at FROM personal_rooms " +
		"WHERE host_id = $1 AND is_active LIMIT 1"
	getRoomQuery = "SELECT room_id, host_id, is_active, created_at, updated_at FROM personal_rooms " +
		"WHERE room_id = $1 LIMIT 1"
	createRoomQuery = "INSERT INTO personal_rooms (room_id, host_id, is_active, created_at, updated_at) " +
		"VALUES ($1, $2, TRUE, $3, $3) RETURNING room_id, host_id, is_active, created_at, updated_at"
	deactivateRoomQuery = "UPDATE personal_rooms SET is_active = FALSE, updated_at = $2 WHERE room_id = $1"
	roomItemsQuery      = "SELECT room_id, item_id, is_visible FROM room_items WHERE room_id = $1 ORDER BY item_id"
	upsertRoomItemQuery = "INSERT INTO room_items (room_id, item_id, is_visible) VALUES ($1, $2, $3) " +
		"ON CONFLICT (room_id, item_id) DO UPDATE SET is_visible = EXCLUDED.is_visible"
	deleteRoomItemQuery = "DELETE FROM room_items WHERE room_id = $1 AND item_id = $2"

	createChatRoomQuery = "INSERT INTO chat_rooms (kind, created_at, updated_at) VALUES ($1, $2, $2) " +
		"RETURNING id, kind, created_at, updated_at"
	getChatRoomQuery  = "SELECT id, kind, created_at, updated_at FROM chat_rooms WHERE id = $1 LIMIT 1"
	joinChatRoomQuery = "INSERT INTO chat_participants (chat_room_id, user_id, last_read_message_id, joined_at) " +
		"VALUES ($1, $2, 0, $3) ON CONFLICT (chat_room_id, user_id) DO NOTHING"
	listParticipantsQuery = "SELECT chat_room_id, user_id, last_read_message_id, joined_at FROM chat_participants " +
		"WHERE chat_room_id = $1 ORDER BY joined_at, user_id"
	listChatRoomsQuery = "SELECT c.id, c.kind, c.created_at, c.updated_at FROM chat_participants p " +
		"JOIN chat_rooms c ON c.id = p.chat_room_id WHERE p.user_id = $1 ORDER BY c.updated_at DESC, c.id DESC"
	// GREATEST makes the watermark advance a compare-and-set: concurrent
	// out-of-order receipts can never move it backwards. LEAST caps it at the
	// newest message of the room so later messages are never pre-read.
	advanceWatermarkQuery = "UPDATE chat_participants " +
		"SET last_read_message_id = GREATEST(last_read_message_id, LEAST($3, " +
		"(SELECT COALESCE(MAX(id), 0) FROM messages WHERE chat_room_id = $1 AND scope = 'CHATROOM'))) " +
		"WHERE chat_room_id = $1 AND user_id = $2 RETURNING last_read_message_id"
	touchChatRoomQuery = "UPDATE chat_rooms SET updated_at = $2 WHERE id = $1"

	// unreadCountsQuery counts, in one round trip, the unread messages of
	// every requested chat room. A missing participant row counts from 0.
	unreadCountsQuery = `
		SELECT m.chat_room_id, COUNT(m.id)
		FROM messages m
		LEFT JOIN chat_participants p
			ON p.chat_room_id = m.chat_room_id AND p.user_id = $2
		WHERE m.chat_room_id = ANY($1)
			AND m.scope = 'CHATROOM'
			AND NOT m.is_deleted
			AND m.sender_id <> $2
			AND m.id > COALESCE(p.last_read_message_id, 0)
		GROUP BY m.chat_room_id`

	createMessageQuery = "INSERT INTO messages (scope, sender_id, receiver_id, room_id, chat_room_id, content, created_at) " +
		"VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id, created_at"
	softDeleteMessageQuery = "UPDATE messages SET is_deleted = TRUE WHERE id = $1"
	markDirectReadQuery    = "UPDATE messages SET is_read = TRUE, read_at = $4 " +
		"WHERE scope = 'DIRECT' AND receiver_id = $1 AND sender_id = $2 AND id <= $3 AND NOT is_read"
	deleteMessagesBeforeQuery = "DELETE FROM messages WHERE created_at < $1"

	messageColumns = "id, scope, sender_id, COALESCE(receiver_id, 0), COALESCE(room_id, ''), " +
		"COALESCE(chat_room_id, 0), content, created_at, is_deleted, is_read, read_at"
)
