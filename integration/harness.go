// Package integration spins up the full HTTP/WS stack against an in-memory
// database and drives it the way a real table client would: REST login, a
// WebSocket connection per participant, typed requests and broadcast deltas.
package integration

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	apirest "github.com/mevsgame/fitgd-sub006/api/rest"
	apows "github.com/mevsgame/fitgd-sub006/api/ws"
	"github.com/mevsgame/fitgd-sub006/config"
	"github.com/mevsgame/fitgd-sub006/game/clock"
	"github.com/mevsgame/fitgd-sub006/game/core"
	"github.com/mevsgame/fitgd-sub006/game/crew"
	"github.com/mevsgame/fitgd-sub006/game/dice"
	"github.com/mevsgame/fitgd-sub006/game/gear"
	"github.com/mevsgame/fitgd-sub006/game/state"
	"github.com/mevsgame/fitgd-sub006/game/turn"
	mw "github.com/mevsgame/fitgd-sub006/middleware"
	"github.com/mevsgame/fitgd-sub006/model"
	"github.com/mevsgame/fitgd-sub006/plugin/hook"
	"github.com/mevsgame/fitgd-sub006/replication"
	"github.com/mevsgame/fitgd-sub006/session"
	"github.com/mevsgame/fitgd-sub006/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const testPassword = "password"

// Harness bundles one running server with direct handles into its internals
// so tests can both drive the public surface and assert on live state.
type Harness struct {
	t      *testing.T
	DB     *gorm.DB
	Store  *state.Store
	Log    *replication.Log
	SM     *session.Manager
	BC     *apows.Broadcaster
	Server *httptest.Server
	sec    config.SecurityConfig
}

// NewHarness builds the full service stack. A nil roller uses real dice;
// tests that assert on outcomes pass a scripted one.
func NewHarness(t *testing.T, roller dice.Roller) *Harness {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := testutil.SetupTestDB(t)
	c, _ := testutil.SetupTestCache(t)

	store := state.NewStore()
	cmdLog := replication.NewLog(nil)
	hooks := hook.NewHookCenter()
	crewSvc := crew.NewService(store, cmdLog, nil)
	clockSvc := clock.NewService(store, cmdLog, hooks, nil)
	gearSvc := gear.NewService(store, cmdLog, nil)
	if roller == nil {
		roller = dice.NewRandRoller(nil)
	}
	turnSvc := turn.NewService(store, cmdLog, crewSvc, clockSvc, roller, hooks, nil)

	sm := session.NewManager(nil)
	bc := apows.NewBroadcaster(cmdLog, replication.NewBreaker(nil), sm, nil)
	router := apows.NewRouter(nil)
	apows.NewHandlers(store, turnSvc, crewSvc, clockSvc, gearSvc, bc, nil).RegisterAll(router)

	sec := config.SecurityConfig{JWTSecret: "integration-secret", JWTTTLH: time.Hour}

	r := gin.New()
	authH := apirest.NewAuthHandler(db, c, sec)
	stateH := apirest.NewStateHandler(store)
	r.POST("/api/auth/login", authH.Login)
	stateG := r.Group("/api/state", mw.Auth(sec, c))
	stateG.GET("/crews/:id", stateH.GetCrew)
	stateG.GET("/characters/:id", stateH.GetCharacter)
	stateG.GET("/characters/:id/round", stateH.GetRound)
	stateG.GET("/clocks", stateH.ListClocks)

	wsH := apows.NewHandler(db, c, sec, sm, store, crewSvc, bc, router, zap.NewNop())
	r.GET("/ws", wsH.ServeWS)

	srv := httptest.NewServer(r)
	t.Cleanup(func() {
		sm.CloseAll()
		srv.Close()
	})

	return &Harness{
		t:      t,
		DB:     db,
		Store:  store,
		Log:    cmdLog,
		SM:     sm,
		BC:     bc,
		Server: srv,
		sec:    sec,
	}
}

// ---- seeding ----

// SeedAccount creates a login with the shared test password.
func (h *Harness) SeedAccount(username string, arbiter bool) *model.Account {
	h.t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(testPassword), bcrypt.MinCost)
	require.NoError(h.t, err)
	acc := &model.Account{Username: username, PasswordHash: string(hash), Arbiter: arbiter}
	require.NoError(h.t, h.DB.Create(acc).Error)
	return acc
}

// SeedCrew registers a crew in the database and the live store.
func (h *Harness) SeedCrew(name string) *model.Crew {
	h.t.Helper()
	crw := &model.Crew{Name: name, CurrentMomentum: 5}
	require.NoError(h.t, h.DB.Create(crw).Error)
	h.Store.PutCrew(crw)
	return crw
}

// SeedCharacter registers a character for the given player in the given crew.
func (h *Harness) SeedCharacter(crewID, playerID int64, name string) *model.Character {
	h.t.Helper()
	char := &model.Character{
		CrewID:         crewID,
		PlayerID:       playerID,
		Name:           name,
		Force:          2,
		Finesse:        1,
		Insight:        1,
		Presence:       1,
		LoadLimit:      5,
		RallyAvailable: true,
	}
	require.NoError(h.t, h.DB.Create(char).Error)
	h.Store.PutCharacter(char)
	return char
}

// SeedEquipment registers an item owned by the character.
func (h *Harness) SeedEquipment(characterID int64, name, tier, category string, equipped bool) *model.Equipment {
	h.t.Helper()
	item := &model.Equipment{
		CharacterID: characterID,
		Name:        name,
		Tier:        tier,
		Category:    category,
		Slots:       1,
		Equipped:    equipped,
	}
	require.NoError(h.t, h.DB.Create(item).Error)
	h.Store.PutEquipment(item)
	return item
}

// ---- HTTP helpers ----

// Login exchanges the username for a bearer token.
func (h *Harness) Login(username string) string {
	h.t.Helper()
	body, err := json.Marshal(map[string]string{"username": username, "password": testPassword})
	require.NoError(h.t, err)
	resp, err := http.Post(h.Server.URL+"/api/auth/login", "application/json", bytes.NewReader(body))
	require.NoError(h.t, err)
	defer resp.Body.Close()
	require.Equal(h.t, http.StatusOK, resp.StatusCode)

	var out struct {
		Token string `json:"token"`
	}
	require.NoError(h.t, json.NewDecoder(resp.Body).Decode(&out))
	require.NotEmpty(h.t, out.Token)
	return out.Token
}

// Get runs an authenticated GET and decodes the JSON body into out.
func (h *Harness) Get(token, path string, out interface{}) {
	h.t.Helper()
	req, err := http.NewRequest(http.MethodGet, h.Server.URL+path, nil)
	require.NoError(h.t, err)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(h.t, err)
	defer resp.Body.Close()
	require.Equal(h.t, http.StatusOK, resp.StatusCode)
	require.NoError(h.t, json.NewDecoder(resp.Body).Decode(out))
}

// ---- WS client ----

// Client is one participant's WebSocket connection. Calls are synchronous:
// send a request, read until its response arrives, queue everything else.
type Client struct {
	t       *testing.T
	conn    *websocket.Conn
	seq     uint64
	pending []session.Packet
}

// Connect dials the WS endpoint with the given token. The server pushes a
// full snapshot on join; it stays queued until a test asks for it.
func (h *Harness) Connect(token string) *Client {
	h.t.Helper()
	wsURL := "ws" + strings.TrimPrefix(h.Server.URL, "http") + "/ws?token=" + token
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(h.t, err)
	if resp != nil {
		resp.Body.Close()
	}
	cl := &Client{t: h.t, conn: conn}
	h.t.Cleanup(func() { conn.Close() })
	return cl
}

// CallResponse is the decoded request acknowledgement.
type CallResponse struct {
	RequestID string          `json:"requestId"`
	Success   bool            `json:"success"`
	Error     string          `json:"error"`
	Data      json.RawMessage `json:"data"`
}

// Call sends a typed request for the character and blocks for its response.
func (c *Client) Call(msgType string, characterID int64, payload interface{}) CallResponse {
	c.t.Helper()
	var raw json.RawMessage
	if payload != nil {
		var err error
		raw, err = json.Marshal(payload)
		require.NoError(c.t, err)
	}
	req := struct {
		RequestID   string          `json:"requestId"`
		CharacterID int64           `json:"characterId"`
		Payload     json.RawMessage `json:"payload,omitempty"`
	}{RequestID: uuid.NewString(), CharacterID: characterID, Payload: raw}

	c.send(msgType, req)

	deadline := time.Now().Add(5 * time.Second)
	for {
		pkt := c.read(deadline)
		if pkt.Type != "response" {
			c.pending = append(c.pending, pkt)
			continue
		}
		var resp CallResponse
		require.NoError(c.t, json.Unmarshal(pkt.Payload, &resp))
		if resp.RequestID == req.RequestID {
			return resp
		}
	}
}

// Notify sends a packet without waiting for any reply (heartbeat, resync).
func (c *Client) Notify(msgType string, payload interface{}) {
	c.t.Helper()
	c.send(msgType, payload)
}

// AwaitPacket returns the next packet of the given type, draining the queue
// first.
func (c *Client) AwaitPacket(typ string) session.Packet {
	c.t.Helper()
	for i, pkt := range c.pending {
		if pkt.Type == typ {
			c.pending = append(c.pending[:i], c.pending[i+1:]...)
			return pkt
		}
	}
	deadline := time.Now().Add(5 * time.Second)
	for {
		pkt := c.read(deadline)
		if pkt.Type == typ {
			return pkt
		}
		c.pending = append(c.pending, pkt)
	}
}

func (c *Client) send(msgType string, payload interface{}) {
	c.t.Helper()
	var raw json.RawMessage
	if payload != nil {
		var err error
		raw, err = json.Marshal(payload)
		require.NoError(c.t, err)
	}
	c.seq++
	data, err := json.Marshal(session.Packet{Seq: c.seq, Type: msgType, Payload: raw})
	require.NoError(c.t, err)
	require.NoError(c.t, c.conn.WriteMessage(websocket.TextMessage, data))
}

func (c *Client) read(deadline time.Time) session.Packet {
	c.t.Helper()
	require.NoError(c.t, c.conn.SetReadDeadline(deadline))
	_, raw, err := c.conn.ReadMessage()
	require.NoError(c.t, err)
	var pkt session.Packet
	require.NoError(c.t, json.Unmarshal(raw, &pkt))
	return pkt
}

// Round decodes the round state carried in a successful response.
func Round(t *testing.T, resp CallResponse) *core.RoundState {
	t.Helper()
	require.True(t, resp.Success, "request failed: %s", resp.Error)
	rs := &core.RoundState{}
	require.NoError(t, json.Unmarshal(resp.Data, rs))
	return rs
}
