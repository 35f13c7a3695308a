package http

import (
	"errors"
	"net/http"
	"time"

	"duosync/internal/core/domain"
	"duosync/internal/core/ports"
	apperrors "duosync/pkg/errors"

	"github.com/gin-gonic/gin"
)

// DuoHandler is the HTTP face of the daemon: identity, presence lookups,
// session lifecycle, library and chat. Live updates go over the control
// websocket; these endpoints serve state queries and commands.
type DuoHandler struct {
	identity ports.IdentityService
	presence ports.PresenceService
	session  ports.SessionService
	library  ports.LibraryService
	chat     ports.ChatService
}

func NewDuoHandler(
	identity ports.IdentityService,
	presence ports.PresenceService,
	session ports.SessionService,
	library ports.LibraryService,
	chat ports.ChatService,
) *DuoHandler {
	return &DuoHandler{
		identity: identity,
		presence: presence,
		session:  session,
		library:  library,
		chat:     chat,
	}
}

func (h *DuoHandler) SetupRoutes(authed gin.IRoutes) {
	authed.GET("/identity", h.GetIdentity)
	authed.PUT("/identity", h.ChangeIdentity)

	authed.GET("/peers/:id/presence", h.GetPresence)

	authed.GET("/session", h.GetSession)
	authed.GET("/session/offer", h.GetPendingOffer)
	authed.POST("/session/connect", h.Connect)
	authed.POST("/session/accept", h.Accept)
	authed.POST("/session/reject", h.Reject)
	authed.POST("/session/disconnect", h.Disconnect)

	authed.PUT("/library", h.SetLibrary)
	authed.GET("/library/common", h.GetCommonLibrary)
	authed.GET("/library/common/artists", h.GetCommonArtists)
	authed.GET("/library/common/albums", h.GetCommonAlbums)
	authed.GET("/library/common/folders", h.GetCommonFolders)

	authed.GET("/chat/messages", h.GetMessages)
	authed.POST("/chat/messages", h.SendMessage)
	authed.POST("/chat/messages/:id/read", h.MarkMessageRead)
}

func requestAccount(c *gin.Context) (domain.AccountID, bool) {
	val, exists := c.Get("account")
	if !exists {
		return "", false
	}
	account, ok := val.(domain.AccountID)
	return account, ok
}

func (h *DuoHandler) GetIdentity(c *gin.Context) {
	account, ok := requestAccount(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}

	id, err := h.identity.GetOrCreateID(c.Request.Context(), account)
	if err != nil {
		c.Error(apperrors.NewTransientRegistryError(err, "get_or_create_id"))
		return
	}

	c.JSON(http.StatusOK, gin.H{"duoId": id})
}

type changeIdentityRequest struct {
	NewID string `json:"newId" binding:"required,len=12"`
}

func (h *DuoHandler) ChangeIdentity(c *gin.Context) {
	account, ok := requestAccount(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}

	var req changeIdentityRequest
	if err := c.BindJSON(&req); err != nil {
		c.Error(apperrors.NewInvalidInputError("invalid request format"))
		return
	}

	id, err := h.identity.ChangeID(c.Request.Context(), account, domain.PeerID(req.NewID))
	switch {
	case errors.Is(err, domain.ErrInvalidPeerID):
		c.Error(apperrors.NewInvalidInputError("Duo ID must be exactly 12 digits"))
	case errors.Is(err, domain.ErrIdentityTaken):
		c.Error(apperrors.NewConflictError("Duo ID is already in use"))
	case err != nil:
		c.Error(apperrors.NewTransientRegistryError(err, "change_id"))
	default:
		c.JSON(http.StatusOK, gin.H{"duoId": id})
	}
}

type presenceResponse struct {
	PeerID     domain.PeerID `json:"peerId"`
	Online     bool          `json:"online"`
	LastSeen   int64         `json:"lastSeen"`
	DeviceName string        `json:"deviceName,omitempty"`
}

func (h *DuoHandler) GetPresence(c *gin.Context) {
	id := domain.PeerID(c.Param("id"))
	if !id.Valid() {
		c.Error(apperrors.NewInvalidInputError("Duo ID must be exactly 12 digits"))
		return
	}

	rec, err := h.presence.GetOnce(c.Request.Context(), id)
	if err != nil {
		c.Error(apperrors.NewTransientRegistryError(err, "get_presence"))
		return
	}
	if rec == nil {
		c.Error(apperrors.NewNotFoundError("peer"))
		return
	}

	c.JSON(http.StatusOK, presenceResponse{
		PeerID:     rec.PeerID,
		Online:     rec.Online,
		LastSeen:   rec.LastSeen.UnixMilli(),
		DeviceName: rec.DeviceName,
	})
}

type sessionResponse struct {
	State            domain.SessionState `json:"state"`
	Role             domain.SessionRole  `json:"role,omitempty"`
	RemoteID         domain.PeerID       `json:"remoteId,omitempty"`
	RemoteDeviceName string              `json:"remoteDeviceName,omitempty"`
	ChannelOpen      bool                `json:"channelOpen"`
	QualityScore     int                 `json:"qualityScore"`
	StartedAt        int64               `json:"startedAt,omitempty"`
}

func (h *DuoHandler) GetSession(c *gin.Context) {
	snap := h.session.Snapshot()
	resp := sessionResponse{
		State:            snap.State,
		Role:             snap.Role,
		RemoteID:         snap.RemoteID,
		RemoteDeviceName: snap.RemoteDeviceName,
		ChannelOpen:      snap.ChannelOpen,
		QualityScore:     snap.QualityScore,
	}
	if !snap.StartedAt.IsZero() {
		resp.StartedAt = snap.StartedAt.UnixMilli()
	}
	c.JSON(http.StatusOK, resp)
}

func (h *DuoHandler) GetPendingOffer(c *gin.Context) {
	offer := h.session.PendingOffer()
	if offer == nil {
		c.Error(apperrors.NewNotFoundError("pending offer"))
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"from":       offer.From,
		"deviceName": offer.FromDevice,
		"timestamp":  offer.Timestamp.UnixMilli(),
	})
}

type connectRequest struct {
	PeerID string `json:"peerId" binding:"required,len=12"`
}

func (h *DuoHandler) Connect(c *gin.Context) {
	var req connectRequest
	if err := c.BindJSON(&req); err != nil {
		c.Error(apperrors.NewInvalidInputError("invalid request format"))
		return
	}

	err := h.session.Connect(c.Request.Context(), domain.PeerID(req.PeerID))
	switch {
	case errors.Is(err, domain.ErrInvalidPeerID):
		c.Error(apperrors.NewInvalidInputError("Duo ID must be exactly 12 digits"))
	case errors.Is(err, domain.ErrSelfConnect):
		c.Error(apperrors.NewInvalidInputError("cannot connect to yourself"))
	case errors.Is(err, domain.ErrPeerOffline):
		c.Error(h.peerOfflineError(c, domain.PeerID(req.PeerID)))
	case errors.Is(err, domain.ErrSessionActive):
		c.Error(apperrors.NewConflictError("a session is already active"))
	case err != nil:
		c.Error(apperrors.NewInternalError(err.Error()))
	default:
		c.JSON(http.StatusAccepted, gin.H{"status": "offer_sent"})
	}
}

// peerOfflineError decorates the offline rejection with the peer's last-seen
// details so a client can offer a notify-me-when-online fallback.
func (h *DuoHandler) peerOfflineError(c *gin.Context, id domain.PeerID) *apperrors.AppError {
	appErr := apperrors.NewPeerStateError("peer is offline")
	rec, err := h.presence.GetOnce(c.Request.Context(), id)
	if err != nil || rec == nil {
		return appErr
	}
	appErr.WithContext("lastSeen", rec.LastSeen.UnixMilli())
	if rec.DeviceName != "" {
		appErr.WithContext("deviceName", rec.DeviceName)
	}
	return appErr
}

func (h *DuoHandler) Accept(c *gin.Context) {
	err := h.session.Accept(c.Request.Context())
	switch {
	case errors.Is(err, domain.ErrNoPendingOffer):
		c.Error(apperrors.NewNotFoundError("pending offer"))
	case errors.Is(err, domain.ErrSessionActive):
		c.Error(apperrors.NewConflictError("a session is already active"))
	case err != nil:
		c.Error(apperrors.NewInternalError(err.Error()))
	default:
		c.JSON(http.StatusAccepted, gin.H{"status": "answer_sent"})
	}
}

func (h *DuoHandler) Reject(c *gin.Context) {
	err := h.session.Reject(c.Request.Context())
	switch {
	case errors.Is(err, domain.ErrNoPendingOffer):
		c.Error(apperrors.NewNotFoundError("pending offer"))
	case err != nil:
		c.Error(apperrors.NewInternalError(err.Error()))
	default:
		c.JSON(http.StatusOK, gin.H{"status": "rejected"})
	}
}

func (h *DuoHandler) Disconnect(c *gin.Context) {
	err := h.session.Disconnect(c.Request.Context())
	switch {
	case errors.Is(err, domain.ErrNoSession):
		c.Error(apperrors.NewNotFoundError("session"))
	case err != nil:
		c.Error(apperrors.NewInternalError(err.Error()))
	default:
		c.JSON(http.StatusOK, gin.H{"status": "disconnected"})
	}
}

type trackRequest struct {
	ID         string `json:"id" binding:"required"`
	Title      string `json:"title" binding:"required"`
	Artist     string `json:"artist"`
	Album      string `json:"album"`
	Path       string `json:"path"`
	DurationMs int64  `json:"durationMs" binding:"min=0"`
}

type setLibraryRequest struct {
	Tracks []trackRequest `json:"tracks" binding:"required"`
}

func (h *DuoHandler) SetLibrary(c *gin.Context) {
	var req setLibraryRequest
	if err := c.BindJSON(&req); err != nil {
		c.Error(apperrors.NewInvalidInputError("invalid request format"))
		return
	}

	tracks := make([]domain.Track, 0, len(req.Tracks))
	for _, t := range req.Tracks {
		tracks = append(tracks, domain.Track{
			ID:         t.ID,
			Title:      t.Title,
			Artist:     t.Artist,
			Album:      t.Album,
			Path:       t.Path,
			DurationMs: t.DurationMs,
		})
	}
	h.library.SetLocalLibrary(tracks)

	c.JSON(http.StatusOK, gin.H{"tracks": len(tracks)})
}

type trackResponse struct {
	ID         string `json:"id"`
	Title      string `json:"title"`
	Artist     string `json:"artist,omitempty"`
	Album      string `json:"album,omitempty"`
	Path       string `json:"path,omitempty"`
	DurationMs int64  `json:"durationMs"`
}

func toTrackResponses(tracks []domain.Track) []trackResponse {
	out := make([]trackResponse, 0, len(tracks))
	for _, t := range tracks {
		out = append(out, trackResponse{
			ID:         t.ID,
			Title:      t.Title,
			Artist:     t.Artist,
			Album:      t.Album,
			Path:       t.Path,
			DurationMs: t.DurationMs,
		})
	}
	return out
}

func (h *DuoHandler) GetCommonLibrary(c *gin.Context) {
	common := h.library.Common()
	c.JSON(http.StatusOK, gin.H{
		"size":   common.Size(),
		"tracks": toTrackResponses(common.Tracks()),
	})
}

func (h *DuoHandler) GetCommonArtists(c *gin.Context) {
	c.JSON(http.StatusOK, h.groupedResponse(h.library.Common().Artists()))
}

func (h *DuoHandler) GetCommonAlbums(c *gin.Context) {
	c.JSON(http.StatusOK, h.groupedResponse(h.library.Common().Albums()))
}

func (h *DuoHandler) GetCommonFolders(c *gin.Context) {
	c.JSON(http.StatusOK, h.groupedResponse(h.library.Common().Folders()))
}

func (h *DuoHandler) groupedResponse(groups map[string][]domain.Track) gin.H {
	out := make(map[string][]trackResponse, len(groups))
	for key, tracks := range groups {
		out[key] = toTrackResponses(tracks)
	}
	return gin.H{"groups": out}
}

type messageResponse struct {
	ID              string               `json:"id"`
	Kind            domain.MessageKind   `json:"kind"`
	Text            string               `json:"text,omitempty"`
	VoiceDurationMs int64                `json:"voiceDurationMs,omitempty"`
	SenderName      string               `json:"senderName"`
	FromMe          bool                 `json:"fromMe"`
	Timestamp       time.Time            `json:"timestamp"`
	Status          domain.MessageStatus `json:"status"`
}

func (h *DuoHandler) GetMessages(c *gin.Context) {
	messages := h.chat.Messages()
	out := make([]messageResponse, 0, len(messages))
	for _, m := range messages {
		out = append(out, messageResponse{
			ID:              m.ID,
			Kind:            m.Kind,
			Text:            m.Text,
			VoiceDurationMs: m.VoiceDurationMs,
			SenderName:      m.SenderName,
			FromMe:          m.FromMe,
			Timestamp:       m.Timestamp,
			Status:          m.Status,
		})
	}
	c.JSON(http.StatusOK, gin.H{"messages": out})
}

type sendMessageRequest struct {
	Text string `json:"text" binding:"required,max=4096"`
}

func (h *DuoHandler) SendMessage(c *gin.Context) {
	var req sendMessageRequest
	if err := c.BindJSON(&req); err != nil {
		c.Error(apperrors.NewInvalidInputError("invalid request format"))
		return
	}

	msg, err := h.chat.SendText(c.Request.Context(), req.Text)
	if err != nil {
		if errors.Is(err, domain.ErrChannelClosed) {
			c.Error(apperrors.NewPeerStateError("no open session to send through"))
			return
		}
		c.Error(apperrors.NewInternalError(err.Error()))
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"id":     msg.ID,
		"status": msg.Status,
	})
}

func (h *DuoHandler) MarkMessageRead(c *gin.Context) {
	if err := h.chat.MarkRead(c.Request.Context(), c.Param("id")); err != nil {
		c.Error(apperrors.NewNotFoundError("message"))
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "read"})
}
