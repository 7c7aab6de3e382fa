package web

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"math"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/render"
	"github.com/gorilla/websocket"

	"github.com/cjeanneret/TurretGo/internal/debug"
	"github.com/cjeanneret/TurretGo/internal/hw/transport"
	"github.com/cjeanneret/TurretGo/internal/logic/aim"
	"github.com/cjeanneret/TurretGo/internal/logic/command"
	"github.com/cjeanneret/TurretGo/internal/logic/geometry"
	"github.com/cjeanneret/TurretGo/internal/logic/motion"
	"github.com/cjeanneret/TurretGo/internal/logic/patrol"
)

// Bounds on request values.
const (
	maxMoveSeconds = 30.0
	maxPasses      = 100
	maxDwellMs     = 60_000
)

// ConfigView is served by GET /configuration.
type ConfigView struct {
	Device            string        `json:"device"`
	Transport         string        `json:"transport"`
	Limits            aim.Limits    `json:"limits"`
	SliceMs           int           `json:"slice_ms"`
	FirePulseMs       int           `json:"fire_pulse_ms"`
	SettleMarginMs    int           `json:"settle_margin_ms"`
	AllowUncalibrated bool          `json:"allow_uncalibrated"`
	Patrol            PatrolRequest `json:"patrol"`
}

// PointRequest is an absolute target in degrees.
type PointRequest struct {
	Pitch float64 `json:"pitch"`
	Yaw   float64 `json:"yaw"`
}

// NudgeRequest is a relative move in degrees.
type NudgeRequest struct {
	Yaw   float64 `json:"yaw"`
	Pitch float64 `json:"pitch"`
}

// AimRequest is a relative move in signed seconds per axis.
type AimRequest struct {
	Yaw   float64 `json:"yaw"`
	Pitch float64 `json:"pitch"`
}

// MoveRequest drives one direction for a number of seconds (0 = default).
type MoveRequest struct {
	Direction string  `json:"direction"`
	Seconds   float64 `json:"seconds"`
}

// PatrolRequest is a sweep area plus what to do at each point.
type PatrolRequest struct {
	geometry.SweepRequest
	DwellMs int  `json:"dwell_ms"`
	Fire    bool `json:"fire"`
	Passes  int  `json:"passes"`
}

// JobResponse acknowledges a motion started in the background.
type JobResponse struct {
	Status string `json:"status"`
	Action string `json:"action"`
}

// TurretStatus is the controller snapshot plus the running job, if any.
type TurretStatus struct {
	aim.Snapshot
	Job string `json:"job,omitempty"`
}

func finite(name string, v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return fmt.Errorf("%s must be a finite number", name)
	}
	return nil
}

func (p PointRequest) Validate() error {
	if err := finite("pitch", p.Pitch); err != nil {
		return err
	}
	return finite("yaw", p.Yaw)
}

func (n NudgeRequest) Validate() error {
	if err := finite("yaw", n.Yaw); err != nil {
		return err
	}
	return finite("pitch", n.Pitch)
}

func (a AimRequest) Validate() error {
	for _, f := range []struct {
		name string
		v    float64
	}{{"yaw", a.Yaw}, {"pitch", a.Pitch}} {
		if err := finite(f.name, f.v); err != nil {
			return err
		}
		if math.Abs(f.v) > maxMoveSeconds {
			return fmt.Errorf("%s must be within ±%g seconds", f.name, maxMoveSeconds)
		}
	}
	return nil
}

// Code returns the direction code for the request.
func (m MoveRequest) Code() (command.Code, error) {
	switch m.Direction {
	case "up":
		return command.Up, nil
	case "down":
		return command.Down, nil
	case "left":
		return command.Left, nil
	case "right":
		return command.Right, nil
	}
	return 0, fmt.Errorf("direction must be up, down, left or right, got %q", m.Direction)
}

func (m MoveRequest) Validate() error {
	if _, err := m.Code(); err != nil {
		return err
	}
	if err := finite("seconds", m.Seconds); err != nil {
		return err
	}
	if m.Seconds < 0 || m.Seconds > maxMoveSeconds {
		return fmt.Errorf("seconds must be between 0 and %g", maxMoveSeconds)
	}
	return nil
}

func (p PatrolRequest) Validate() error {
	for _, f := range []struct {
		name string
		v    float64
	}{
		{"center_yaw", p.CenterYaw}, {"center_pitch", p.CenterPitch},
		{"yaw_span", p.YawSpan}, {"pitch_span", p.PitchSpan},
		{"yaw_step", p.YawStep}, {"pitch_step", p.PitchStep},
	} {
		if err := finite(f.name, f.v); err != nil {
			return err
		}
	}
	if p.DwellMs < 0 || p.DwellMs > maxDwellMs {
		return fmt.Errorf("dwell_ms must be between 0 and %d", maxDwellMs)
	}
	if p.Passes < 0 || p.Passes > maxPasses {
		return fmt.Errorf("passes must be between 0 and %d", maxPasses)
	}
	return nil
}

type validator interface {
	Validate() error
}

// Handlers holds dependencies for HTTP handlers.
type Handlers struct {
	Broadcaster *StatusBroadcaster
	Turret      *aim.Turret
	Config      ConfigView
	staticFS    fs.FS
	upgrader    websocket.Upgrader

	runningMu sync.Mutex
	running   string
	cancel    context.CancelFunc
	jobs      sync.WaitGroup
}

// NewHandlers creates handlers with the given dependencies.
// If turret is nil, control endpoints return 503 Service Unavailable.
func NewHandlers(broadcaster *StatusBroadcaster, turret *aim.Turret, cfg ConfigView, staticFS fs.FS) *Handlers {
	return &Handlers{
		Broadcaster: broadcaster,
		Turret:      turret,
		Config:      cfg,
		staticFS:    staticFS,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Running returns the name of the job in progress, or "".
func (h *Handlers) Running() string {
	h.runningMu.Lock()
	defer h.runningMu.Unlock()
	return h.running
}

// Wait blocks until background jobs have finished.
func (h *Handlers) Wait() {
	h.jobs.Wait()
}

// Shutdown cancels the running job and waits for it.
func (h *Handlers) Shutdown() {
	h.runningMu.Lock()
	cancel := h.cancel
	h.runningMu.Unlock()
	if cancel != nil {
		cancel()
	}
	h.jobs.Wait()
}

// start runs fn in the background unless another job is in progress.
func (h *Handlers) start(w http.ResponseWriter, r *http.Request, action string, fn func(ctx context.Context) error) {
	if h.Turret == nil {
		render.Render(w, r, ErrUnavailable)
		return
	}

	h.runningMu.Lock()
	if h.running != "" {
		running := h.running
		h.runningMu.Unlock()
		render.Render(w, r, ErrConflict(running))
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	h.running = action
	h.cancel = cancel
	h.jobs.Add(1)
	h.runningMu.Unlock()

	go func() {
		defer h.jobs.Done()
		defer func() {
			h.runningMu.Lock()
			h.running = ""
			h.cancel = nil
			h.runningMu.Unlock()
			cancel()
		}()

		h.Broadcaster.Publish(StatusEvent{Kind: KindJob, Level: "info", Msg: action + " started"})
		if err := fn(ctx); err != nil {
			debug.Error(fmt.Errorf("%s: %w", action, err))
			h.Broadcaster.Publish(StatusEvent{Kind: KindJob, Level: "error", Msg: action + " failed: " + err.Error()})
		} else {
			h.Broadcaster.Publish(StatusEvent{Kind: KindJob, Level: "info", Msg: action + " complete"})
		}
		h.Broadcaster.BroadcastSnapshot(h.Turret.Snapshot())
	}()

	render.Status(r, http.StatusAccepted)
	render.JSON(w, r, JobResponse{Status: "started", Action: action})
}

// decode reads an optional JSON body into v and validates it.
func decode(r *http.Request, v interface{}) error {
	if err := render.DecodeJSON(r.Body, v); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	if val, ok := v.(validator); ok {
		return val.Validate()
	}
	return nil
}

// ServeIndex serves the control page.
func (h *Handlers) ServeIndex(w http.ResponseWriter, r *http.Request) {
	data, err := fs.ReadFile(h.staticFS, "index.html")
	if err != nil {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(data)
}

// HandleConfiguration returns the effective configuration.
func (h *Handlers) HandleConfiguration(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, h.Config)
}

// HandleHosts lists peer controllers. Discovery is not implemented, so both
// lists are always empty.
func (h *Handlers) HandleHosts(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, map[string][]string{
		"connected_hosts": {},
		"visible_hosts":   {},
	})
}

// HandleForgetHosts accepts DELETE /hosts.
func (h *Handlers) HandleForgetHosts(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusNoContent)
}

// HandleTurrets lists the turrets driven by this process.
func (h *Handlers) HandleTurrets(w http.ResponseWriter, r *http.Request) {
	active := []aim.Snapshot{}
	known := []string{}
	if h.Turret != nil {
		active = append(active, h.Turret.Snapshot())
		known = append(known, h.Turret.Name())
	}
	render.JSON(w, r, map[string]interface{}{
		"active_turrets": active,
		"known_turrets":  known,
	})
}

// HandleTurret returns the controller snapshot.
func (h *Handlers) HandleTurret(w http.ResponseWriter, r *http.Request) {
	if h.Turret == nil {
		render.Render(w, r, ErrUnavailable)
		return
	}
	render.JSON(w, r, TurretStatus{Snapshot: h.Turret.Snapshot(), Job: h.Running()})
}

func (h *Handlers) HandlePoint(w http.ResponseWriter, r *http.Request) {
	var req PointRequest
	if err := decode(r, &req); err != nil {
		render.Render(w, r, ErrInvalidRequest(err))
		return
	}
	h.start(w, r, "point", func(ctx context.Context) error {
		_, err := h.Turret.Point(ctx, req.Pitch, req.Yaw)
		return err
	})
}

func (h *Handlers) HandleNudge(w http.ResponseWriter, r *http.Request) {
	var req NudgeRequest
	if err := decode(r, &req); err != nil {
		render.Render(w, r, ErrInvalidRequest(err))
		return
	}
	h.start(w, r, "nudge", func(ctx context.Context) error {
		_, err := h.Turret.Nudge(ctx, req.Yaw, req.Pitch)
		return err
	})
}

func (h *Handlers) HandleAim(w http.ResponseWriter, r *http.Request) {
	var req AimRequest
	if err := decode(r, &req); err != nil {
		render.Render(w, r, ErrInvalidRequest(err))
		return
	}
	h.start(w, r, "aim", func(ctx context.Context) error {
		_, err := h.Turret.Interleaver().Aim(ctx, req.Yaw, req.Pitch)
		return err
	})
}

func (h *Handlers) HandleMove(w http.ResponseWriter, r *http.Request) {
	var req MoveRequest
	if err := decode(r, &req); err != nil {
		render.Render(w, r, ErrInvalidRequest(err))
		return
	}
	code, _ := req.Code()
	d := motion.Seconds(req.Seconds)
	if d == 0 {
		d = motion.DefaultDuration
	}
	h.start(w, r, "move", func(ctx context.Context) error {
		return h.Turret.Executor().Send(ctx, code, d)
	})
}

func (h *Handlers) HandleCalibrate(w http.ResponseWriter, r *http.Request) {
	var req aim.CalibrateOptions
	if err := decode(r, &req); err != nil {
		render.Render(w, r, ErrInvalidRequest(err))
		return
	}
	h.start(w, r, "calibrate", func(ctx context.Context) error {
		return h.Turret.Calibrate(ctx, req)
	})
}

func (h *Handlers) HandleCenter(w http.ResponseWriter, r *http.Request) {
	h.start(w, r, "center", h.Turret.Center)
}

func (h *Handlers) HandleFire(w http.ResponseWriter, r *http.Request) {
	h.start(w, r, "fire", func(ctx context.Context) error {
		return h.Turret.Executor().Fire(ctx)
	})
}

// HandlePatrol plans a sweep from the request (config defaults for missing
// values) and runs it in the background.
func (h *Handlers) HandlePatrol(w http.ResponseWriter, r *http.Request) {
	req := h.Config.Patrol
	if err := decode(r, &req); err != nil {
		render.Render(w, r, ErrInvalidRequest(err))
		return
	}
	if h.Turret == nil {
		render.Render(w, r, ErrUnavailable)
		return
	}
	plan, err := geometry.PlanSweep(req.SweepRequest, h.Turret.Limits())
	if err != nil {
		render.Render(w, r, ErrInvalidRequest(err))
		return
	}
	params := patrol.SweepParams{
		Plan:   plan,
		Dwell:  time.Duration(req.DwellMs) * time.Millisecond,
		Fire:   req.Fire,
		Passes: req.Passes,
	}
	h.start(w, r, "patrol", func(ctx context.Context) error {
		n, err := patrol.NewSequence(h.Turret).Run(ctx, params)
		debug.Info("Patrol visited %d/%d points", n, len(plan.Points)*max(1, params.Passes))
		return err
	})
}

// HandleStop cancels the running job and stops the launcher immediately.
// It never waits behind the single-run guard.
func (h *Handlers) HandleStop(w http.ResponseWriter, r *http.Request) {
	if h.Turret == nil {
		render.Render(w, r, ErrUnavailable)
		return
	}
	h.runningMu.Lock()
	cancel := h.cancel
	h.runningMu.Unlock()
	if cancel != nil {
		cancel()
	}
	if err := h.Turret.Estop(); err != nil {
		render.Render(w, r, ErrTransport(err))
		return
	}
	h.Broadcaster.Broadcast("warn", "Emergency stop")
	render.JSON(w, r, TurretStatus{Snapshot: h.Turret.Snapshot()})
}

// HandleStatusStream handles GET /status/stream for SSE.
func (h *Handlers) HandleStatusStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // nginx

	ch, unsub := h.Broadcaster.Subscribe()
	defer unsub()

	w.Write([]byte(": connected\n\n"))
	flusher.Flush()

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return
			}
			w.Write([]byte("data: " + msg + "\n\n"))
			flusher.Flush()

		case <-ticker.C:
			w.Write([]byte(": heartbeat\n\n"))
			flusher.Flush()

		case <-r.Context().Done():
			return
		}
	}
}

// HandleStatusWS streams the same events over a websocket. The first message
// is the current snapshot. Anything the client sends is ignored.
func (h *Handlers) HandleStatusWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		debug.Error(fmt.Errorf("websocket upgrade: %w", err))
		return
	}
	defer conn.Close()

	ch, unsub := h.Broadcaster.Subscribe()
	defer unsub()

	if h.Turret != nil {
		conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		if err := conn.WriteJSON(StatusEvent{
			Time: time.Now().UTC().Format(time.RFC3339),
			Kind: KindStatus,
			Data: h.Turret.Snapshot(),
		}); err != nil {
			return
		}
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		conn.SetReadLimit(4096)
		conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		conn.SetPongHandler(func(string) error {
			conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			return nil
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					debug.Verbose("websocket read: %v", err)
				}
				return
			}
		}
	}()

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-ch:
			conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
				return
			}

		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-done:
			return
		}
	}
}

// ErrResponse renders an error as JSON.
type ErrResponse struct {
	Err            error `json:"-"`
	HTTPStatusCode int   `json:"-"`

	StatusText string `json:"status"`
	ErrorText  string `json:"error,omitempty"`
}

func (e *ErrResponse) Render(w http.ResponseWriter, r *http.Request) error {
	render.Status(r, e.HTTPStatusCode)
	return nil
}

func ErrInvalidRequest(err error) render.Renderer {
	return &ErrResponse{
		Err:            err,
		HTTPStatusCode: http.StatusBadRequest,
		StatusText:     "invalid request",
		ErrorText:      err.Error(),
	}
}

func ErrConflict(running string) render.Renderer {
	return &ErrResponse{
		HTTPStatusCode: http.StatusConflict,
		StatusText:     "busy",
		ErrorText:      running + " already in progress",
	}
}

// ErrTransport reports a failed frame on the device link.
func ErrTransport(err error) render.Renderer {
	text := "transport error"
	if transport.IsError(err) {
		text = "device link error"
	}
	return &ErrResponse{
		Err:            err,
		HTTPStatusCode: http.StatusBadGateway,
		StatusText:     text,
		ErrorText:      err.Error(),
	}
}

var ErrUnavailable = &ErrResponse{HTTPStatusCode: http.StatusServiceUnavailable, StatusText: "turret not configured"}
