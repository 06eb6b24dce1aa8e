package services

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rehearsal-ai/backend/models"
)

func TestResumeAPIFlow(t *testing.T) {
	client, _ := newAPIServer(t)

	rec := client.do(http.MethodPost, "/api/v1/resumes",
		`{"identifier":"senior-distributed-systems","years_experience":11,"domains":["distributed systems","databases"],"summary":"Led the storage team."}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created CreateResumeResponse
	client.decode(rec, &created)
	resumeID := created.Resume.ID
	require.NotEmpty(t, resumeID)

	// Invalid fields are rejected before any row is written.
	rec = client.do(http.MethodPost, "/api/v1/resumes",
		`{"identifier":"test","years_experience":61,"domains":[]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "years of experience")

	rec = client.do(http.MethodGet, "/api/v1/resumes", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var list GetResumesResponse
	client.decode(rec, &list)
	assert.Equal(t, 1, list.Count)

	rec = client.do(http.MethodPut, "/api/v1/resumes/"+resumeID,
		`{"identifier":"senior-distributed-systems","years_experience":12,"domains":["distributed systems"],"summary":"Led the storage team for four years."}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = client.do(http.MethodGet, "/api/v1/resumes/"+resumeID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var got struct {
		Resume models.Resume `json:"resume"`
	}
	client.decode(rec, &got)
	assert.Equal(t, 12, got.Resume.YearsExperience)

	// A stored resume seeds a session config by id.
	rec = client.do(http.MethodPost, "/api/v1/sessions",
		fmt.Sprintf(`{"enabled_modes":["text"],"ai_provider":"google","ai_model":"gemini-2.5-flash","resume_id":%q}`, resumeID))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var session CreateSessionResponse
	client.decode(rec, &session)
	assert.Equal(t, "senior-distributed-systems", session.Session.Config.ResumeData.Identifier)
	assert.Equal(t, 12, session.Session.Config.ResumeData.YearsExperience)

	// Another user can neither read it nor borrow it for a session.
	other := &apiClient{t: t, handler: client.handler}
	other.signup("other@example.com", "password-two", "Other User")

	rec = other.do(http.MethodGet, "/api/v1/resumes/"+resumeID, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = other.do(http.MethodPost, "/api/v1/sessions",
		fmt.Sprintf(`{"enabled_modes":["text"],"ai_provider":"google","ai_model":"gemini-2.5-flash","resume_id":%q}`, resumeID))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = client.do(http.MethodDelete, "/api/v1/resumes/"+resumeID, "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = client.do(http.MethodGet, "/api/v1/resumes/"+resumeID, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
