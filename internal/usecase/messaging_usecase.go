package usecase

import (
	"context"
	"sort"
	"strings"

	"petadopt/internal/domain/entity"
	"petadopt/internal/domain/repository"
	"petadopt/internal/metrics"
	"petadopt/pkg/errors"
	"petadopt/pkg/logger"
)

const (
	CollectionConversations = "conversations"
	CollectionMessages      = "messages"

	conversationIDSeparator = "_"

	// Firestore rejects batches with more than 500 writes.
	maxBatchWrites = 500
)

type MessagingUseCase struct {
	store repository.DocumentStore
}

func NewMessagingUseCase(store repository.DocumentStore) *MessagingUseCase {
	return &MessagingUseCase{
		store: store,
	}
}

type SendMessageInput struct {
	ConversationID string
	SenderID       string
	SenderName     string
	SenderType     string
	SenderAvatar   string
	Text           string
}

// MessagesCollection is the path of the messages nested under a conversation.
func MessagesCollection(conversationID string) string {
	return repository.CollectionPath(CollectionConversations, conversationID, CollectionMessages)
}

// DeriveConversationID maps an unordered pair of users to one conversation id.
func DeriveConversationID(userA, userB string) string {
	ids := []string{userA, userB}
	sort.Strings(ids)
	return strings.Join(ids, conversationIDSeparator)
}

func (uc *MessagingUseCase) GetOrCreateConversation(ctx context.Context, userA, userB string) (string, error) {
	if userA == "" || userB == "" {
		return "", errors.Validation("Both participants are required")
	}
	if userA == userB {
		return "", errors.Validation("You cannot start a conversation with yourself")
	}

	conversationID := DeriveConversationID(userA, userB)

	_, err := uc.store.Get(ctx, CollectionConversations, conversationID)
	if err == nil {
		return conversationID, nil
	}
	if !errors.Is(err, errors.CodeNotFound) {
		logger.Error("GetOrCreateConversation Error: Failed to look up conversation %s: %v", conversationID, err)
		metrics.StoreErrors.WithLabelValues("get_conversation").Inc()
		return "", err
	}

	now := uc.store.ServerTimestamp()
	err = uc.store.Create(ctx, CollectionConversations, conversationID, map[string]interface{}{
		entity.FieldParticipants:      []string{userA, userB},
		entity.FieldLastMessage:       "",
		entity.FieldLastMessageTime:   now,
		entity.FieldCreatedAt:         now,
		entity.FieldUpdatedAt:         now,
		entity.FieldLastReadAt:        now,
		entity.FieldUnreadCountByUser: map[string]interface{}{},
	})
	if err != nil {
		logger.Error("GetOrCreateConversation Error: Failed to create conversation %s: %v", conversationID, err)
		metrics.StoreErrors.WithLabelValues("create_conversation").Inc()
		return "", err
	}

	metrics.ConversationsCreated.Inc()
	logger.Debug("GetOrCreateConversation: created conversation %s", conversationID)
	return conversationID, nil
}

// GetConversation loads a conversation and checks that userID takes part in it.
func (uc *MessagingUseCase) GetConversation(ctx context.Context, conversationID, userID string) (*entity.Conversation, error) {
	doc, err := uc.store.Get(ctx, CollectionConversations, conversationID)
	if err != nil {
		if errors.Is(err, errors.CodeNotFound) {
			return nil, errors.NotFound("Conversation", err)
		}
		logger.Error("GetConversation Error: Failed to get conversation %s: %v", conversationID, err)
		metrics.StoreErrors.WithLabelValues("get_conversation").Inc()
		return nil, err
	}

	conversation, err := entity.ConversationFromFields(doc.ID, doc.Data)
	if err != nil {
		return nil, errors.Internal("Failed to parse conversation data", err)
	}

	if !conversation.HasParticipant(userID) {
		logger.Warn("GetConversation Error: User %s is not a participant in conversation %s", userID, conversationID)
		return nil, errors.Forbidden("User is not a participant in this conversation", nil)
	}

	return conversation, nil
}

func (uc *MessagingUseCase) ListConversations(ctx context.Context, userID string) ([]*entity.Conversation, error) {
	docs, err := uc.store.Query(ctx, userConversationsQuery(userID))
	if err != nil {
		logger.Error("ListConversations Error: Failed to list conversations for user %s: %v", userID, err)
		metrics.StoreErrors.WithLabelValues("list_conversations").Inc()
		return nil, err
	}
	return decodeConversations(docs), nil
}

func (uc *MessagingUseCase) ListConversationMessages(ctx context.Context, conversationID string) ([]*entity.Message, error) {
	docs, err := uc.store.Query(ctx, conversationMessagesQuery(conversationID))
	if err != nil {
		logger.Error("ListConversationMessages Error: Failed to list messages for conversation %s: %v", conversationID, err)
		metrics.StoreErrors.WithLabelValues("list_messages").Inc()
		return nil, err
	}
	return decodeMessages(conversationID, docs), nil
}

// SendMessage appends a message and updates the conversation summary in one
// batch. Validation happens before any store access.
func (uc *MessagingUseCase) SendMessage(ctx context.Context, input SendMessageInput) (string, error) {
	if result := ValidateMessage(input.Text); !result.Valid {
		return "", errors.Validation(result.Error)
	}
	if input.ConversationID == "" || input.SenderID == "" {
		return "", errors.Validation("Conversation and sender are required")
	}

	conversation, err := uc.GetConversation(ctx, input.ConversationID, input.SenderID)
	if err != nil {
		logger.Error("SendMessage Error: Conversation %s unavailable for sender %s: %v", input.ConversationID, input.SenderID, err)
		return "", err
	}

	text := strings.TrimSpace(input.Text)
	now := uc.store.ServerTimestamp()
	messages := MessagesCollection(conversation.ID)
	messageID := uc.store.NewDocumentID(messages)

	data := map[string]interface{}{
		entity.FieldSenderID:   input.SenderID,
		entity.FieldSenderName: input.SenderName,
		entity.FieldSenderType: input.SenderType,
		entity.FieldText:       text,
		entity.FieldCreatedAt:  now,
		entity.FieldReadBy:     map[string]interface{}{input.SenderID: now},
		entity.FieldEdited:     false,
		entity.FieldDeletedAt:  nil,
	}
	if input.SenderAvatar != "" {
		data[entity.FieldSenderAvatar] = input.SenderAvatar
	}

	updates := []repository.Update{
		{Path: repository.FieldPath{entity.FieldLastMessage}, Value: text},
		{Path: repository.FieldPath{entity.FieldLastMessageTime}, Value: now},
		{Path: repository.FieldPath{entity.FieldUpdatedAt}, Value: now},
	}
	for _, participantID := range conversation.Participants {
		if participantID != input.SenderID {
			updates = append(updates, repository.Update{
				Path:  repository.FieldPath{entity.FieldUnreadCountByUser, participantID},
				Value: uc.store.Increment(1),
			})
		}
	}

	err = uc.store.BatchWrite(ctx, []repository.Write{
		{Kind: repository.WriteCreate, Collection: messages, DocID: messageID, Data: data},
		{Kind: repository.WriteUpdate, Collection: CollectionConversations, DocID: conversation.ID, Updates: updates},
	})
	if err != nil {
		logger.Error("SendMessage Error: Failed to send message to conversation %s: %v", conversation.ID, err)
		metrics.StoreErrors.WithLabelValues("send_message").Inc()
		return "", err
	}

	metrics.MessagesSent.Inc()
	return messageID, nil
}

// MarkMessageAsRead records a read receipt for one message. Best effort:
// failures are logged, never returned.
func (uc *MessagingUseCase) MarkMessageAsRead(ctx context.Context, conversationID, messageID, userID string) {
	message, ok := uc.loadMessage(ctx, "MarkMessageAsRead", conversationID, messageID)
	if !ok || message.IsReadBy(userID) {
		return
	}

	uc.commitReadReceipts(ctx, "MarkMessageAsRead", conversationID, []*entity.Message{message}, userID)
}

// MarkMessagesAsRead records read receipts for the listed messages in a single
// batch, skipping those userID has already read.
func (uc *MessagingUseCase) MarkMessagesAsRead(ctx context.Context, conversationID string, messageIDs []string, userID string) {
	var unread []*entity.Message
	for _, messageID := range messageIDs {
		message, ok := uc.loadMessage(ctx, "MarkMessagesAsRead", conversationID, messageID)
		if ok && !message.IsReadBy(userID) {
			unread = append(unread, message)
		}
	}
	if len(unread) == 0 {
		return
	}

	uc.commitReadReceipts(ctx, "MarkMessagesAsRead", conversationID, unread, userID)
}

// MarkConversationAsRead records read receipts for every message of the
// conversation userID has not read yet.
func (uc *MessagingUseCase) MarkConversationAsRead(ctx context.Context, conversationID, userID string) {
	docs, err := uc.store.Query(ctx, repository.Query{Collection: MessagesCollection(conversationID)})
	if err != nil {
		logger.Error("MarkConversationAsRead Error: Failed to query messages of conversation %s: %v", conversationID, err)
		metrics.StoreErrors.WithLabelValues("mark_conversation_read").Inc()
		return
	}

	var unread []*entity.Message
	for _, message := range decodeMessages(conversationID, docs) {
		if !message.IsReadBy(userID) {
			unread = append(unread, message)
		}
	}
	if len(unread) == 0 {
		return
	}

	uc.commitReadReceipts(ctx, "MarkConversationAsRead", conversationID, unread, userID)
}

// GetTotalUnreadMessages sums unread messages over all of userID's
// conversations. The cached per-conversation counter is used when present;
// otherwise the messages are scanned. Any store failure yields 0.
func (uc *MessagingUseCase) GetTotalUnreadMessages(ctx context.Context, userID string) int {
	docs, err := uc.store.Query(ctx, repository.Query{
		Collection: CollectionConversations,
		Filters:    []repository.Filter{{Field: entity.FieldParticipants, Op: repository.OpArrayContains, Value: userID}},
	})
	if err != nil {
		logger.Error("GetTotalUnreadMessages Error: Failed to list conversations for user %s: %v", userID, err)
		metrics.StoreErrors.WithLabelValues("unread_total").Inc()
		return 0
	}

	total := 0
	for _, conversation := range decodeConversations(docs) {
		if n, ok := conversation.CachedUnread(userID); ok {
			total += n
			continue
		}

		n, err := uc.countUnread(ctx, conversation.ID, userID)
		if err != nil {
			logger.Error("GetTotalUnreadMessages Error: Failed to scan conversation %s for user %s: %v", conversation.ID, userID, err)
			metrics.StoreErrors.WithLabelValues("unread_scan").Inc()
			return 0
		}
		total += n
	}

	return total
}

// OnUserConversationsChange streams userID's conversations, most recent first.
func (uc *MessagingUseCase) OnUserConversationsChange(ctx context.Context, userID string, onChange func([]*entity.Conversation)) repository.Subscription {
	return uc.store.Subscribe(ctx, userConversationsQuery(userID),
		func(docs []*repository.Document) {
			onChange(decodeConversations(docs))
		},
		func(err error) {
			logger.Error("OnUserConversationsChange Error: Listener for user %s failed: %v", userID, err)
			metrics.ListenerErrors.WithLabelValues("conversations").Inc()
		},
	)
}

// OnConversationMessagesChange streams a conversation's messages in creation order.
func (uc *MessagingUseCase) OnConversationMessagesChange(ctx context.Context, conversationID string, onChange func([]*entity.Message)) repository.Subscription {
	return uc.store.Subscribe(ctx, conversationMessagesQuery(conversationID),
		func(docs []*repository.Document) {
			onChange(decodeMessages(conversationID, docs))
		},
		func(err error) {
			logger.Error("OnConversationMessagesChange Error: Listener for conversation %s failed: %v", conversationID, err)
			metrics.ListenerErrors.WithLabelValues("messages").Inc()
		},
	)
}

func (uc *MessagingUseCase) countUnread(ctx context.Context, conversationID, userID string) (int, error) {
	docs, err := uc.store.Query(ctx, repository.Query{Collection: MessagesCollection(conversationID)})
	if err != nil {
		return 0, err
	}

	metrics.UnreadFallbackScans.Inc()
	count := 0
	for _, message := range decodeMessages(conversationID, docs) {
		if message.IsUnreadFor(userID) {
			count++
		}
	}
	return count, nil
}

func (uc *MessagingUseCase) loadMessage(ctx context.Context, op, conversationID, messageID string) (*entity.Message, bool) {
	doc, err := uc.store.Get(ctx, MessagesCollection(conversationID), messageID)
	if err != nil {
		if errors.Is(err, errors.CodeNotFound) {
			logger.Warn("%s: Message %s not found in conversation %s", op, messageID, conversationID)
			return nil, false
		}
		logger.Error("%s Error: Failed to get message %s in conversation %s: %v", op, messageID, conversationID, err)
		metrics.StoreErrors.WithLabelValues("get_message").Inc()
		return nil, false
	}

	message, err := entity.MessageFromFields(doc.ID, doc.Data)
	if err != nil {
		logger.Error("%s Error: Failed to parse message %s: %v", op, messageID, err)
		return nil, false
	}
	return message, true
}

// commitReadReceipts writes readBy.<user> for every message plus a lastReadAt
// touch on the conversation, so conversation subscribers see the change even
// when no message arrived. The cached counter is decremented by the messages
// from others in each batch. A decrement commutes with the increment of a
// concurrent send, so a message arriving mid-read stays counted.
func (uc *MessagingUseCase) commitReadReceipts(ctx context.Context, op, conversationID string, unread []*entity.Message, userID string) {
	messages := MessagesCollection(conversationID)
	chunk := maxBatchWrites - 1

	for start := 0; start < len(unread); start += chunk {
		end := start + chunk
		if end > len(unread) {
			end = len(unread)
		}
		now := uc.store.ServerTimestamp()

		writes := make([]repository.Write, 0, end-start+1)
		fromOthers := 0
		for _, message := range unread[start:end] {
			if message.SenderID != userID {
				fromOthers++
			}
			writes = append(writes, repository.Write{
				Kind:       repository.WriteUpdate,
				Collection: messages,
				DocID:      message.ID,
				Updates:    []repository.Update{{Path: repository.FieldPath{entity.FieldReadBy, userID}, Value: now}},
			})
		}

		touch := []repository.Update{{Path: repository.FieldPath{entity.FieldLastReadAt}, Value: now}}
		if fromOthers > 0 {
			counter := repository.FieldPath{entity.FieldUnreadCountByUser, userID}
			touch = append(touch, repository.Update{Path: counter, Value: uc.store.Increment(int64(-fromOthers))})
		}
		writes = append(writes, repository.Write{
			Kind:       repository.WriteUpdate,
			Collection: CollectionConversations,
			DocID:      conversationID,
			Updates:    touch,
		})

		if err := uc.store.BatchWrite(ctx, writes); err != nil {
			logger.Error("%s Error: Failed to write read receipts for user %s in conversation %s: %v", op, userID, conversationID, err)
			metrics.StoreErrors.WithLabelValues("read_receipts").Inc()
			return
		}
		metrics.ReadReceiptsWritten.Add(float64(end - start))
	}
}

func userConversationsQuery(userID string) repository.Query {
	return repository.Query{
		Collection: CollectionConversations,
		Filters:    []repository.Filter{{Field: entity.FieldParticipants, Op: repository.OpArrayContains, Value: userID}},
		OrderBy:    &repository.OrderBy{Field: entity.FieldLastMessageTime, Direction: repository.Desc},
	}
}

func conversationMessagesQuery(conversationID string) repository.Query {
	return repository.Query{
		Collection: MessagesCollection(conversationID),
		OrderBy:    &repository.OrderBy{Field: entity.FieldCreatedAt, Direction: repository.Asc},
	}
}

func decodeConversations(docs []*repository.Document) []*entity.Conversation {
	conversations := make([]*entity.Conversation, 0, len(docs))
	for _, doc := range docs {
		conversation, err := entity.ConversationFromFields(doc.ID, doc.Data)
		if err != nil {
			logger.Warn("Skipping malformed conversation %s: %v", doc.ID, err)
			continue
		}
		conversations = append(conversations, conversation)
	}
	return conversations
}

func decodeMessages(conversationID string, docs []*repository.Document) []*entity.Message {
	messages := make([]*entity.Message, 0, len(docs))
	for _, doc := range docs {
		message, err := entity.MessageFromFields(doc.ID, doc.Data)
		if err != nil {
			logger.Warn("Skipping malformed message %s in conversation %s: %v", doc.ID, conversationID, err)
			continue
		}
		messages = append(messages, message)
	}
	return messages
}
