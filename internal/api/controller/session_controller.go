package controller

import (
	"bytes"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/bassista/plannerd/internal/filetarget"
	"github.com/bassista/plannerd/internal/logger"
	"github.com/bassista/plannerd/internal/session"
	"github.com/bassista/plannerd/internal/storage"
)

// SessionController exposes the storage session over HTTP. It is a thin
// adapter: all orchestration lives in internal/storage.
type SessionController struct {
	session *storage.Session
}

// NewSessionController creates a new SessionController.
func NewSessionController(s *storage.Session) *SessionController {
	return &SessionController{session: s}
}

// GetSession loads the current document and reports where it came from.
func (sc *SessionController) GetSession(c *gin.Context) {
	res := sc.session.Initialize(c.Request.Context())
	c.JSON(http.StatusOK, res)
}

// PutSession replaces the working document and schedules a debounced save.
func (sc *SessionController) PutSession(c *gin.Context) {
	doc, ok := sc.bindDocument(c)
	if !ok {
		return
	}

	sc.session.AutoSave(doc, nil)
	c.JSON(http.StatusAccepted, gin.H{"scheduled": true})
}

// SaveNow persists the submitted document immediately, bypassing the
// debounce.
func (sc *SessionController) SaveNow(c *gin.Context) {
	doc, ok := sc.bindDocument(c)
	if !ok {
		return
	}

	res := sc.session.SaveNow(c.Request.Context(), doc)
	if !res.Success {
		c.JSON(http.StatusInternalServerError, res)
		return
	}
	c.JSON(http.StatusOK, res)
}

// locationRequest carries the user's picked path. Reacquire restores a lost
// handle instead of changing the target; AcceptRenamed confirms a pick whose
// file name differs from the remembered one.
type locationRequest struct {
	Path          string `json:"path" binding:"required"`
	Reacquire     bool   `json:"reacquire"`
	AcceptRenamed bool   `json:"acceptRenamed"`
}

// SetLocation runs the location setup flow (or handle re-acquisition) with
// the path the user picked.
func (sc *SessionController) SetLocation(c *gin.Context) {
	var req locationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}

	picker := filetarget.StaticPicker{Path: req.Path, AcceptRenamed: req.AcceptRenamed}
	ctx := c.Request.Context()

	if req.Reacquire {
		res := sc.session.ReacquireLocation(ctx, picker)
		if res.Status == filetarget.StatusFailure {
			logger.WithComponent("http").Errorf("reacquire failed for %s: %v", req.Path, res.Err)
			c.JSON(http.StatusUnprocessableEntity, gin.H{"status": res.Status.String(), "error": "could not read the selected file"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": res.Status.String(), "path": res.Path, "data": res.Document})
		return
	}

	current, _, err := sc.session.CurrentDocument(ctx)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read current session"})
		return
	}

	res := sc.session.ChangeSaveLocation(ctx, picker, current)
	if res.Status == filetarget.StatusFailure {
		logger.WithComponent("http").Errorf("location setup failed for %s: %v", req.Path, res.Err)
		c.JSON(http.StatusUnprocessableEntity, gin.H{"status": res.Status.String(), "error": "could not use the selected file"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": res.Status.String(), "path": res.Path, "data": res.Document})
}

// ForgetLocation clears the remembered save target; saves fall back to the
// local cache.
func (sc *SessionController) ForgetLocation(c *gin.Context) {
	if err := sc.session.ForgetLocation(); err != nil {
		logger.WithComponent("http").Errorf("failed to forget location: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to clear save location"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "location cleared"})
}

// Import reads a manually uploaded session file.
func (sc *SessionController) Import(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing file"})
		return
	}

	f, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable file"})
		return
	}
	defer f.Close()

	doc, err := sc.session.LoadFromFileInput(c.Request.Context(), f)
	if err != nil {
		if errors.Is(err, session.ErrParse) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid session file"})
			return
		}
		logger.WithComponent("http").Errorf("import failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "import failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": doc})
}

// Export serves the current snapshot as a dated JSON download.
func (sc *SessionController) Export(c *gin.Context) {
	var buf bytes.Buffer
	if err := sc.session.ExportDocument(c.Request.Context(), &buf); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no session to export"})
		return
	}

	name := sc.session.ExportFileName(time.Now())
	c.Header("Content-Disposition", `attachment; filename="`+name+`"`)
	c.Data(http.StatusOK, "application/json", buf.Bytes())
}

// Status reports where saves currently land and what the platform supports.
func (sc *SessionController) Status(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"path":                sc.session.GetCurrentSavePath(),
		"hasFileLocation":     sc.session.HasFileLocation(),
		"fileSystemAvailable": sc.session.IsFileSystemAvailable(),
		"syncMode":            string(sc.session.SyncMode()),
		"lastSavedAt":         sc.session.LastSavedAt(),
	})
}

// bindDocument parses and validates the request body as a session document.
func (sc *SessionController) bindDocument(c *gin.Context) (*session.Document, bool) {
	raw, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable body"})
		return nil, false
	}
	doc, err := session.Deserialize(raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid session document"})
		return nil, false
	}
	return doc, true
}
