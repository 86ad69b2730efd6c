package handlers

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/yeqown/go-qrcode/v2"
	"github.com/yeqown/go-qrcode/writer/standard"
	"go.uber.org/zap"

	"github.com/arailymkabykenova/MemeBattle/internal/game"
)

// RoomQR serves a PNG QR code encoding the room's invite link. Only
// rooms with a join code have one.
func (h *Handler) RoomQR(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r.Context())
	roomID, err := pathID(r, "roomID")
	if err != nil {
		h.writeError(w, err)
		return
	}
	details, err := h.rooms.Details(r.Context(), roomID, user.ID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if details.Code == "" {
		h.writeError(w, game.Validation("room has no invite code"))
		return
	}

	inviteURL := fmt.Sprintf("%s/join?code=%s", baseURL(r), details.Code)
	png, err := renderQR(inviteURL)
	if err != nil {
		h.writeError(w, game.Internal("qr generation failed", err))
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	if _, err := w.Write(png); err != nil {
		h.log.Warn("qr write failed", zap.Error(err))
	}
}

// renderQR rasterises the URL into PNG bytes. The writer only targets
// files, so it goes through a scratch file.
func renderQR(url string) ([]byte, error) {
	qrc, err := qrcode.NewWith(url,
		qrcode.WithErrorCorrectionLevel(qrcode.ErrorCorrectionMedium),
		qrcode.WithEncodingMode(qrcode.EncModeByte),
	)
	if err != nil {
		return nil, err
	}

	tmp := filepath.Join(os.TempDir(), fmt.Sprintf("qr_%d.png", time.Now().UnixNano()))
	wr, err := standard.New(tmp,
		standard.WithBuiltinImageEncoder(standard.PNG_FORMAT),
		standard.WithQRWidth(8),
	)
	if err != nil {
		return nil, err
	}
	if err := qrc.Save(wr); err != nil {
		return nil, err
	}
	defer os.Remove(tmp)
	return os.ReadFile(tmp)
}

// baseURL reconstructs the externally visible origin, honouring the
// reverse-proxy forwarding headers.
func baseURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	}
	host := r.Host
	if forwarded := r.Header.Get("X-Forwarded-Host"); forwarded != "" {
		host = forwarded
	}
	return scheme + "://" + host
}
