package server

import (
	"net/http"

	"github.com/MarcoPoloResearchLab/ballotbox/internal/catalog"
	"github.com/MarcoPoloResearchLab/ballotbox/internal/imageproxy"
	"github.com/gin-gonic/gin"
)

type voteRequest struct {
	CandidateID string `json:"candidateId"`
}

type voteResponse struct {
	Message     string `json:"message"`
	CandidateID string `json:"candidateId"`
}

func (h *httpHandler) handleTeams(c *gin.Context) {
	teams, err := h.catalog.ListTeams(c.Request.Context())
	if err != nil {
		h.respondError(c, "list_teams", err)
		return
	}
	c.JSON(http.StatusOK, teams)
}

func (h *httpHandler) handleCandidates(c *gin.Context) {
	candidates, err := h.catalog.ListCandidates(c.Request.Context())
	if err != nil {
		h.respondError(c, "list_candidates", err)
		return
	}
	views := make([]catalog.CandidateView, 0, len(candidates))
	for _, candidate := range candidates {
		views = append(views, candidate.View())
	}
	c.JSON(http.StatusOK, views)
}

func (h *httpHandler) handleVote(c *gin.Context) {
	var request voteRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		h.respondBindingError(c, err)
		return
	}
	ballot, err := h.voting.CastVote(c.Request.Context(), c.GetString(userIDContextKey), request.CandidateID)
	if err != nil {
		h.respondError(c, "vote", err)
		return
	}
	c.JSON(http.StatusOK, voteResponse{Message: "Vote recorded successfully", CandidateID: ballot.CandidateID})
}

func (h *httpHandler) handleResults(c *gin.Context) {
	results, err := h.tally.ComputeResults(c.Request.Context())
	if err != nil {
		h.respondError(c, "results", err)
		return
	}
	c.JSON(http.StatusOK, results)
}

func (h *httpHandler) handleVotedUsers(c *gin.Context) {
	voters, err := h.tally.VotedUsers(c.Request.Context())
	if err != nil {
		h.respondError(c, "voted_users", err)
		return
	}
	c.JSON(http.StatusOK, voters)
}

func (h *httpHandler) handleVoteCounts(c *gin.Context) {
	counts, err := h.tally.VoteCounts(c.Request.Context())
	if err != nil {
		h.respondError(c, "vote_counts", err)
		return
	}
	c.JSON(http.StatusOK, counts)
}

func (h *httpHandler) handleImageProxy(c *gin.Context) {
	image, err := h.images.Fetch(c.Request.Context(), c.Query("url"))
	if err != nil {
		h.respondError(c, "image_proxy", err)
		return
	}
	c.Header("Cache-Control", imageproxy.CacheControl)
	c.Header("X-Content-Type-Options", "nosniff")
	c.Header("Content-Security-Policy", "default-src 'none'")
	c.Data(http.StatusOK, image.ContentType, image.Body)
}
