package api

import (
	"net/http"

	"github.com/carebridge/carebridge/internal/server"
	"github.com/gorilla/websocket"
)

const (
	readBufferSize  = 1024
	writeBufferSize = 1024
)

// serveWs upgrades the connection, then authenticates. Upgrading first lets
// the server reject bad credentials with a proper close frame instead of a
// plain HTTP error the websocket client can't inspect.
func (s *CareBridgeApp) serveWs(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  readBufferSize,
		WriteBufferSize: writeBufferSize,
		CheckOrigin:     s.checkOrigin,
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Println("failed to upgrade connection:", err)
		return
	}

	tokenString := wsToken(r)
	if tokenString == "" {
		s.closeWithPolicyViolation(conn, "Unauthorized")
		return
	}

	userId, _, err := s.verifyToken(tokenString)
	if err != nil {
		s.log.Printf("websocket auth: %v", err)
		s.closeWithPolicyViolation(conn, "Authentication failed")
		return
	}

	dbUser, err := s.db.GetAccountById(userId)
	if err != nil {
		s.log.Println("GetAccountById:", err)
		s.closeWithPolicyViolation(conn, "Authentication failed")
		return
	}

	client := server.NewClient(toApiUser(dbUser), conn, s.cs, s.log, s.stats)
	s.cs.RegisterClient(client)

	go client.Write()
	go client.Read()
}

// wsToken accepts the token as a query parameter, the usual path for
// browser websocket clients, falling back to the cookie or bearer header.
func wsToken(r *http.Request) string {
	if token := r.URL.Query().Get("token"); token != "" {
		return token
	}

	return tokenFromRequest(r)
}

func (s *CareBridgeApp) closeWithPolicyViolation(conn *websocket.Conn, reason string) {
	msg := websocket.FormatCloseMessage(websocket.ClosePolicyViolation, reason)
	if err := conn.WriteMessage(websocket.CloseMessage, msg); err != nil {
		s.log.Println("failed to write close message:", err)
	}
	conn.Close()
}

// checkOrigin permits same-origin and configured origins. Non-browser
// clients send no Origin header and are allowed through.
func (s *CareBridgeApp) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}

	for _, allowed := range s.allowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}

	return false
}
