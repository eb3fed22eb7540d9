package api

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"time"

	"github.com/gorilla/websocket"
	"github.com/teris-io/shortid"

	"github.com/convoapp/convo/internal/auth"
	"github.com/convoapp/convo/internal/bus"
	"github.com/convoapp/convo/internal/database"
	"github.com/convoapp/convo/internal/push"
	"github.com/convoapp/convo/internal/types"
)

const tokenCookieKey = "token"

const accessTokenExpiration = 24 * time.Hour

type RegisterRequest struct {
	Username    string `json:"username"`
	DisplayName string `json:"display_name"`
	Password    string `json:"password"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type SessionResponse struct {
	User              types.User `json:"user"`
	SubscriptionToken string     `json:"subscription_token"`
}

type UpdateAccountRequest struct {
	Username    string `json:"username"`
	DisplayName string `json:"display_name"`
	Avatar      string `json:"avatar"`
	Password    string `json:"password"`
}

type CreateConversationRequest struct {
	Name           string   `json:"name"`
	Type           string   `json:"type"`
	ParticipantIds []string `json:"participant_ids"`
}

type CreateMessageRequest struct {
	ConversationId string `json:"conversation_id"`
	ContentType    string `json:"content_type"`
	Content        string `json:"content"`
}

type RemovePushRegistrationRequest struct {
	Endpoint string `json:"endpoint"`
}

func (s *ConvoApp) writeJson(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if v == nil {
		return
	}

	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Printf("json encode: %v", err)
	}
}

func (s *ConvoApp) healthCheck(w http.ResponseWriter, _ *http.Request) {
	if err := s.db.Ping(); err != nil {
		s.log.Printf("health check: %v", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (s *ConvoApp) createAccount(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if req.Username == "" || req.Password == "" {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if _, err := s.db.GetUserByUsername(req.Username); err == nil {
		errResp := NewConflictError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	} else if !errors.Is(err, sql.ErrNoRows) {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	pwdHash, err := auth.HashPassword(req.Password)
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	id, err := shortid.Generate()
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	displayName := req.DisplayName
	if displayName == "" {
		displayName = req.Username
	}

	newUser, err := s.db.CreateAccount(database.CreateAccountParams{
		Id:           id,
		Username:     req.Username,
		DisplayName:  displayName,
		PasswordHash: pwdHash,
	})
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusCreated, newUser.Snapshot())
}

func (s *ConvoApp) login(w http.ResponseWriter, r *http.Request) {
	var lr LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&lr); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if lr.Username == "" || lr.Password == "" {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	dbUser, err := s.db.GetUserByUsername(lr.Username)
	if err != nil {
		var errResp *ApiError
		if errors.Is(err, sql.ErrNoRows) {
			errResp = NewUnauthorizedError()
		} else {
			errResp = NewInternalServerError(err)
		}
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if !auth.VerifyPassword(dbUser.PasswordHash, lr.Password) {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	accessToken, err := s.auth.GenerateAccessToken(dbUser.Id)
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	subscriptionToken, err := s.auth.GenerateSubscriptionToken(dbUser.Id)
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	http.SetCookie(w, createTokenCookie(accessToken, accessTokenExpiration))

	s.writeJson(w, http.StatusOK, SessionResponse{
		User:              dbUser.Snapshot(),
		SubscriptionToken: subscriptionToken,
	})
}

func (s *ConvoApp) session(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	user, err := s.db.GetUserById(userId)
	if err != nil {
		var errResp *ApiError
		if errors.Is(err, sql.ErrNoRows) {
			errResp = NewNotFoundError()
		} else {
			errResp = NewInternalServerError(err)
		}
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	subscriptionToken, err := s.auth.GenerateSubscriptionToken(user.Id)
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusOK, SessionResponse{
		User:              user.Snapshot(),
		SubscriptionToken: subscriptionToken,
	})
}

// updateAccount changes the caller's profile. Untouched fields are left
// empty in the request and keep their stored values. A successful update
// publishes user_updated so watchers of the profile see the change.
func (s *ConvoApp) updateAccount(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	var req UpdateAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if req.Username == "" && req.DisplayName == "" && req.Avatar == "" && req.Password == "" {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if req.Username != "" {
		existing, err := s.db.GetUserByUsername(req.Username)
		if err == nil && existing.Id != userId {
			errResp := NewConflictError()
			s.writeJson(w, errResp.StatusCode, errResp)
			return
		}
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			errResp := NewInternalServerError(err)
			s.writeJson(w, errResp.StatusCode, errResp)
			return
		}
	}

	var pwdHash string
	if req.Password != "" {
		var err error
		pwdHash, err = auth.HashPassword(req.Password)
		if err != nil {
			errResp := NewInternalServerError(err)
			s.writeJson(w, errResp.StatusCode, errResp)
			return
		}
	}

	updated, err := s.db.UpdateAccount(database.UpdateAccountParams{
		UserId:       userId,
		Username:     req.Username,
		DisplayName:  req.DisplayName,
		Avatar:       req.Avatar,
		PasswordHash: pwdHash,
	})
	if err != nil {
		var errResp *ApiError
		if errors.Is(err, sql.ErrNoRows) {
			errResp = NewNotFoundError()
		} else {
			errResp = NewInternalServerError(err)
		}
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	user := updated.Snapshot()
	s.bus.Publish(bus.UserUpdated, user)

	s.writeJson(w, http.StatusOK, user)
}

func (s *ConvoApp) logout(w http.ResponseWriter, _ *http.Request) {
	// instruct browser to delete cookie by overwriting it with an expired token
	http.SetCookie(w, createTokenCookie("", time.Duration(time.Unix(0, 0).Unix())))
	w.WriteHeader(http.StatusNoContent)
}

func createTokenCookie(tokenString string, exp time.Duration) *http.Cookie {
	return &http.Cookie{
		Name:     tokenCookieKey,
		Value:    tokenString,
		Path:     "/",
		Expires:  time.Now().Add(exp),
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	}
}

func (s *ConvoApp) listUsers(w http.ResponseWriter, _ *http.Request) {
	dbUsers, err := s.db.ListUsers()
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	var users []types.User
	for _, u := range dbUsers {
		users = append(users, u.Snapshot())
	}

	s.writeJson(w, http.StatusOK, users)
}

func (s *ConvoApp) createConversation(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	var req CreateConversationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if req.Type == "" {
		req.Type = types.ConversationTypePrivate
	}
	if req.Type != types.ConversationTypePrivate && req.Type != types.ConversationTypeGroup {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	participantIds := req.ParticipantIds
	if !slices.Contains(participantIds, userId) {
		participantIds = append(participantIds, userId)
	}
	if len(participantIds) < 2 {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}
	if req.Type == types.ConversationTypePrivate && len(participantIds) != 2 {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	// a private conversation between the same two users is a singleton
	if req.Type == types.ConversationTypePrivate {
		existing, err := s.db.GetConversationByParticipants(participantIds)
		if err == nil {
			s.writeJson(w, http.StatusOK, existing.Snapshot())
			return
		}
		if !errors.Is(err, sql.ErrNoRows) {
			errResp := NewInternalServerError(err)
			s.writeJson(w, errResp.StatusCode, errResp)
			return
		}
	}

	id, err := shortid.Generate()
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	newConv, err := s.db.CreateConversation(database.CreateConversationParams{
		Id:             id,
		Name:           req.Name,
		Type:           req.Type,
		ParticipantIds: participantIds,
	})
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	conv := newConv.Snapshot()
	s.bus.Publish(bus.ConversationCreated, conv)

	payload := push.Payload{Body: "You were added to a new conversation"}
	if creator, err := s.db.GetUserById(userId); err != nil {
		s.log.Printf("load creator %s: %v", userId, err)
	} else {
		payload.Body = fmt.Sprintf("%s started a conversation with you", creator.DisplayName)
		payload.Icon = creator.Avatar
	}
	go s.push.NotifyParticipants(conv, userId, payload)

	s.writeJson(w, http.StatusCreated, conv)
}

func (s *ConvoApp) listConversations(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	dbConvs, err := s.db.ListConversationsByParticipant(userId)
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	var convs []types.Conversation
	for _, c := range dbConvs {
		convs = append(convs, c.Snapshot())
	}

	s.writeJson(w, http.StatusOK, convs)
}

func (s *ConvoApp) createMessage(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	var req CreateMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if req.ConversationId == "" || req.Content == "" {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if req.ContentType == "" {
		req.ContentType = types.ContentTypeText
	}
	if req.ContentType != types.ContentTypeText && req.ContentType != types.ContentTypeImage {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	isParticipant, err := s.db.IsParticipant(req.ConversationId, userId)
	if err != nil {
		var errResp *ApiError
		if errors.Is(err, sql.ErrNoRows) {
			errResp = NewNotFoundError()
		} else {
			errResp = NewInternalServerError(err)
		}
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}
	if !isParticipant {
		errResp := NewForbiddenError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	id, err := shortid.Generate()
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	newMsg, err := s.db.CreateMessage(database.CreateMessageParams{
		Id:             id,
		ConversationId: req.ConversationId,
		SenderId:       userId,
		ContentType:    req.ContentType,
		Content:        req.Content,
	})
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	msg := newMsg.Snapshot()
	s.bus.Publish(bus.MessageCreated, msg)

	// the last-message stamp is auxiliary; if it fails the participants
	// still get their ConversationUpdated event and their pushes
	updatedConv, err := s.db.UpdateLastMessage(req.ConversationId, newMsg.Id)
	if err != nil {
		s.log.Printf("update last message for %s: %v", req.ConversationId, err)
		updatedConv, err = s.db.GetConversationById(req.ConversationId)
	}
	if err != nil {
		s.log.Printf("load conversation %s: %v", req.ConversationId, err)
		s.writeJson(w, http.StatusCreated, msg)
		return
	}

	conv := updatedConv.Snapshot()
	s.bus.Publish(bus.ConversationUpdated, conv)

	payload := push.Payload{Body: "You have a new message"}
	if sender, err := s.db.GetUserById(userId); err != nil {
		s.log.Printf("load sender %s: %v", userId, err)
	} else {
		payload.Body = fmt.Sprintf("%s sent you a message", sender.DisplayName)
		payload.Icon = sender.Avatar
	}
	if req.ContentType == types.ContentTypeImage {
		payload.Image = req.Content
	}
	go s.push.NotifyParticipants(conv, userId, payload)

	s.writeJson(w, http.StatusCreated, msg)
}

func (s *ConvoApp) getMessages(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	conversationId := r.URL.Query().Get("conversation_id")
	if conversationId == "" {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	isParticipant, err := s.db.IsParticipant(conversationId, userId)
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}
	if !isParticipant {
		errResp := NewForbiddenError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	dbMessages, err := s.db.ListMessagesByConversation(conversationId)
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	var messages []types.Message
	for _, m := range dbMessages {
		messages = append(messages, m.Snapshot())
	}

	s.writeJson(w, http.StatusOK, messages)
}

func (s *ConvoApp) addPushRegistration(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	var reg types.PushRegistration
	if err := json.NewDecoder(r.Body).Decode(&reg); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if reg.Endpoint == "" || reg.P256dhKey == "" || reg.AuthSecret == "" {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if err := s.db.AddPushRegistration(userId, reg); err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusCreated, reg)
}

func (s *ConvoApp) removePushRegistration(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	var req RemovePushRegistrationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Endpoint == "" {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if err := s.db.RemovePushRegistration(userId, req.Endpoint); err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusNoContent, nil)
}

// serveWs upgrades the connection and hands it to the session layer. The
// subscription credential arrives in the first frame, not here.
func (s *ConvoApp) serveWs(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}

			return slices.Contains(s.allowedOrigins, origin)
		},
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Printf("upgrade connection: %v", err)
		return
	}

	if _, err := s.sessions.HandleConnection(conn); err != nil {
		s.log.Printf("handle connection: %v", err)
		conn.Close()
	}
}
