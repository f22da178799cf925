package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/judgeboard/platform/internal/auth"
	"github.com/judgeboard/platform/internal/queue"
	"github.com/judgeboard/platform/internal/sandbox"
	"github.com/judgeboard/platform/internal/store"
	"github.com/judgeboard/platform/pkg/messaging"
)

const teamFairnessWindow = 10 * time.Minute

type registerRequest struct {
	ContestID string `json:"contest_id" binding:"required"`
	Name      string `json:"name" binding:"required"`
	Password  string `json:"password" binding:"required"`
	IsAdmin   bool   `json:"is_admin"`
}

func (s *Server) register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	contestID, err := uuid.Parse(req.ContestID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid contest_id"})
		return
	}

	team, err := s.auth.Register(c.Request.Context(), contestID, req.Name, req.Password, req.IsAdmin)
	if err != nil {
		if err == auth.ErrTeamExists {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "registration failed"})
		return
	}

	c.JSON(http.StatusCreated, team)
}

type loginRequest struct {
	ContestID string `json:"contest_id" binding:"required"`
	Name      string `json:"name" binding:"required"`
	Password  string `json:"password" binding:"required"`
}

func (s *Server) login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	contestID, err := uuid.Parse(req.ContestID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid contest_id"})
		return
	}

	token, err := s.auth.Login(c.Request.Context(), contestID, req.Name, req.Password)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"token": token})
}

type createSubmissionRequest struct {
	ProblemID  string `json:"problem_id" binding:"required"`
	Language   string `json:"language" binding:"required"`
	SourceCode string `json:"source_code" binding:"required"`
}

func (s *Server) createSubmission(c *gin.Context) {
	claims := c.MustGet("claims").(*auth.Claims)

	var req createSubmissionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	lang, ok := sandbox.Resolve(req.Language)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unsupported language"})
		return
	}

	problemID, err := uuid.Parse(req.ProblemID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid problem_id"})
		return
	}
	teamID, _ := uuid.Parse(claims.TeamID)
	contestID, _ := uuid.Parse(claims.ContestID)

	ctx := c.Request.Context()

	cases, err := s.store.LoadTestCases(ctx, problemID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load problem"})
		return
	}

	contest, err := s.store.GetContest(ctx, contestID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load contest"})
		return
	}

	recentCount, err := s.store.CountRecentSubmissions(ctx, teamID, teamFairnessWindow)
	if err != nil {
		s.logger.Warn("failed to count recent submissions", zap.Error(err))
	}

	now := time.Now()
	submissionID := uuid.New()

	sub := store.Submission{
		ID:             submissionID,
		TeamID:         teamID,
		ProblemID:      problemID,
		ContestID:      contestID,
		Language:       req.Language,
		SourceCode:     req.SourceCode,
		SubmissionTime: now,
		TotalTestCases: len(cases),
	}
	if err := s.store.InsertSubmission(ctx, sub); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to record submission"})
		return
	}

	priority := queue.ComputePriority(queue.PriorityInputs{
		ContestStart:          contest.StartTime,
		ContestEnd:            contest.StartTime.Add(contest.Duration),
		SubmittedAt:           now,
		TeamRecentSubmissions: recentCount,
		CompiledLanguage:      lang.CompileEnabled,
	})

	job := &queue.Job{
		SubmissionID: submissionID,
		ContestID:    contestID,
		Priority:     priority,
		EnqueuedAt:   now.UnixNano(),
	}
	if err := s.rq.Enqueue(ctx, job); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to enqueue submission"})
		return
	}

	s.publishSubmissionEvent(ctx, submissionID, contestID, teamID, problemID, req.Language, "queued", "")

	c.JSON(http.StatusAccepted, gin.H{"submission_id": submissionID, "status": "queued"})
}

func (s *Server) getSubmission(c *gin.Context) {
	submissionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid submission id"})
		return
	}

	sub, err := s.store.GetSubmission(c.Request.Context(), submissionID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "submission not found"})
		return
	}

	claims := c.MustGet("claims").(*auth.Claims)
	if !claims.IsAdmin && sub.TeamID.String() != claims.TeamID {
		c.JSON(http.StatusForbidden, gin.H{"error": "not your submission"})
		return
	}

	c.JSON(http.StatusOK, sub)
}

func (s *Server) getLeaderboard(c *gin.Context) {
	contestID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid contest id"})
		return
	}

	standings, ok := s.leaderboard.Standings(contestID)
	if !ok {
		c.JSON(http.StatusOK, gin.H{"contest_id": contestID, "frozen": s.leaderboard.IsFrozen(contestID), "standings": []interface{}{}})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"contest_id": contestID,
		"frozen":     s.leaderboard.IsFrozen(contestID),
		"standings":  standings,
	})
}

func (s *Server) getContestStatus(c *gin.Context) {
	contestID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid contest id"})
		return
	}

	contest, err := s.store.GetContest(c.Request.Context(), contestID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "contest not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"contest_id": contest.ID,
		"phase":      contest.Phase,
		"is_frozen":  contest.IsFrozen,
		"ends_at":    contest.StartTime.Add(contest.Duration),
	})
}

func (s *Server) issueSocketToken(c *gin.Context) {
	claims := c.MustGet("claims").(*auth.Claims)
	teamID, _ := uuid.Parse(claims.TeamID)
	contestID, _ := uuid.Parse(claims.ContestID)

	token, err := s.auth.IssueSocketToken(teamID, contestID, claims.IsAdmin)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to issue socket token"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"token": token})
}

// handleSocket upgrades a websocket connection, authenticated via a
// handshake token carried as a query parameter since browsers cannot set
// an Authorization header on a websocket upgrade request.
func (s *Server) handleSocket(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
		return
	}

	claims, err := s.auth.VerifyToken(token)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	if err := s.hub.ServeWS(c.Writer, c.Request, claims); err != nil {
		s.logger.Warn("websocket upgrade failed", zap.Error(err))
	}
}

func (s *Server) rejudgeSubmission(c *gin.Context) {
	submissionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid submission id"})
		return
	}

	ctx := c.Request.Context()
	sub, err := s.store.GetSubmission(ctx, submissionID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "submission not found"})
		return
	}

	job := &queue.Job{
		SubmissionID: submissionID,
		ContestID:    sub.ContestID,
		Priority:     queue.ComputePriority(queue.PriorityInputs{SubmittedAt: time.Now(), AdminOverride: true}),
		EnqueuedAt:   time.Now().UnixNano(),
	}
	if err := s.rq.Enqueue(ctx, job); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to enqueue rejudge"})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"submission_id": submissionID, "status": "rejudge_queued"})
}

func (s *Server) pauseQueue(c *gin.Context) {
	if err := s.rq.Pause(c.Request.Context()); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to pause queue"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "paused"})
}

func (s *Server) resumeQueue(c *gin.Context) {
	if err := s.rq.Resume(c.Request.Context()); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to resume queue"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "resumed"})
}

func (s *Server) cleanQueue(c *gin.Context) {
	if err := s.rq.Clean(c.Request.Context()); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to clean dead letter queue"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "cleaned"})
}

func (s *Server) publishSubmissionEvent(ctx context.Context, submissionID, contestID, teamID, problemID uuid.UUID, language, status, verdict string) {
	if s.msg == nil {
		return
	}
	event := messaging.SubmissionEvent{
		SubmissionID: submissionID,
		ContestID:    contestID,
		TeamID:       teamID,
		ProblemID:    problemID,
		Language:     language,
		Status:       status,
		Verdict:      verdict,
	}
	if err := s.msg.Publish(ctx, messaging.EventTypeSubmissionQueued, event); err != nil {
		s.logger.Warn("failed to publish submission event", zap.Error(err))
	}
}
