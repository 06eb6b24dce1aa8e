package services

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/rehearsal-ai/backend/models"
	"github.com/rehearsal-ai/backend/repository"
)

type ResumeEndpoints struct {
	store repository.Store
}

type CreateResumeRequest struct {
	Identifier      string   `json:"identifier"`
	YearsExperience int      `json:"years_experience"`
	Domains         []string `json:"domains"`
	Summary         string   `json:"summary"`
}

type CreateResumeResponse struct {
	Resume  models.Resume `json:"resume"`
	Message string        `json:"message"`
}

type GetResumesResponse struct {
	Resumes []models.Resume `json:"resumes"`
	Count   int             `json:"count"`
}

func NewResumeEndpoints(store repository.Store) *ResumeEndpoints {
	return &ResumeEndpoints{
		store: store,
	}
}

func (e *ResumeEndpoints) RegisterRoutes(r chi.Router) {
	r.Route("/resumes", func(r chi.Router) {
		r.Post("/", e.CreateResumeHandler)
		r.Get("/", e.GetResumesHandler)
		r.Get("/{id}", e.GetResumeHandler)
		r.Put("/{id}", e.UpdateResumeHandler)
		r.Delete("/{id}", e.DeleteResumeHandler)
	})
}

func (e *ResumeEndpoints) CreateResumeHandler(w http.ResponseWriter, r *http.Request) {
	user := CurrentUser(r)
	if user == nil {
		http.Error(w, "Not authenticated", http.StatusUnauthorized)
		return
	}

	var req CreateResumeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	data := models.ResumeData{
		Identifier:      req.Identifier,
		YearsExperience: req.YearsExperience,
		Domains:         req.Domains,
		Summary:         req.Summary,
	}
	if err := validateResumeData(data); err != nil {
		writeServiceError(w, err)
		return
	}

	resume := models.Resume{
		ID:              uuid.New().String(),
		UserID:          user.ID,
		Identifier:      req.Identifier,
		YearsExperience: req.YearsExperience,
		Domains:         req.Domains,
		Summary:         req.Summary,
	}

	if err := e.store.CreateResume(r.Context(), &resume); err != nil {
		slog.Error("Failed to create resume", "error", err, "user_id", user.ID)
		writeServiceError(w, err)
		return
	}

	response := CreateResumeResponse{
		Resume:  resume,
		Message: "Resume created successfully",
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(response)

	slog.Info("Resume created", "resume_id", resume.ID, "user_id", user.ID, "identifier", resume.Identifier)
}

func (e *ResumeEndpoints) GetResumesHandler(w http.ResponseWriter, r *http.Request) {
	user := CurrentUser(r)
	if user == nil {
		http.Error(w, "Not authenticated", http.StatusUnauthorized)
		return
	}

	resumes, err := e.store.ListResumes(r.Context(), user.ID)
	if err != nil {
		slog.Error("Failed to list resumes", "error", err, "user_id", user.ID)
		writeServiceError(w, err)
		return
	}

	response := GetResumesResponse{
		Resumes: resumes,
		Count:   len(resumes),
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

func (e *ResumeEndpoints) GetResumeHandler(w http.ResponseWriter, r *http.Request) {
	user := CurrentUser(r)
	if user == nil {
		http.Error(w, "Not authenticated", http.StatusUnauthorized)
		return
	}

	resumeID := chi.URLParam(r, "id")
	if resumeID == "" {
		http.Error(w, "Resume ID is required", http.StatusBadRequest)
		return
	}

	resume, err := e.store.GetResume(r.Context(), resumeID, user.ID)
	if err != nil {
		slog.Error("Failed to get resume", "error", err, "resume_id", resumeID, "user_id", user.ID)
		writeServiceError(w, err)
		return
	}
	if resume == nil {
		http.Error(w, "Resume not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"resume": resume,
	})
}

func (e *ResumeEndpoints) UpdateResumeHandler(w http.ResponseWriter, r *http.Request) {
	user := CurrentUser(r)
	if user == nil {
		http.Error(w, "Not authenticated", http.StatusUnauthorized)
		return
	}

	resumeID := chi.URLParam(r, "id")
	if resumeID == "" {
		http.Error(w, "Resume ID is required", http.StatusBadRequest)
		return
	}

	resume, err := e.store.GetResume(r.Context(), resumeID, user.ID)
	if err != nil {
		slog.Error("Failed to get resume for update", "error", err, "resume_id", resumeID, "user_id", user.ID)
		writeServiceError(w, err)
		return
	}
	if resume == nil {
		http.Error(w, "Resume not found", http.StatusNotFound)
		return
	}

	var req CreateResumeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	data := models.ResumeData{
		Identifier:      req.Identifier,
		YearsExperience: req.YearsExperience,
		Domains:         req.Domains,
		Summary:         req.Summary,
	}
	if err := validateResumeData(data); err != nil {
		writeServiceError(w, err)
		return
	}

	resume.Identifier = req.Identifier
	resume.YearsExperience = req.YearsExperience
	resume.Domains = req.Domains
	resume.Summary = req.Summary

	if err := e.store.UpdateResume(r.Context(), resume); err != nil {
		slog.Error("Failed to update resume", "error", err, "resume_id", resumeID, "user_id", user.ID)
		writeServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"resume":  resume,
		"message": "Resume updated successfully",
	})

	slog.Info("Resume updated", "resume_id", resumeID, "user_id", user.ID)
}

func (e *ResumeEndpoints) DeleteResumeHandler(w http.ResponseWriter, r *http.Request) {
	user := CurrentUser(r)
	if user == nil {
		http.Error(w, "Not authenticated", http.StatusUnauthorized)
		return
	}

	resumeID := chi.URLParam(r, "id")
	if resumeID == "" {
		http.Error(w, "Resume ID is required", http.StatusBadRequest)
		return
	}

	resume, err := e.store.GetResume(r.Context(), resumeID, user.ID)
	if err != nil {
		slog.Error("Failed to get resume for deletion", "error", err, "resume_id", resumeID, "user_id", user.ID)
		writeServiceError(w, err)
		return
	}
	if resume == nil {
		http.Error(w, "Resume not found", http.StatusNotFound)
		return
	}

	if err := e.store.DeleteResume(r.Context(), resumeID); err != nil {
		slog.Error("Failed to delete resume", "error", err, "resume_id", resumeID, "user_id", user.ID)
		writeServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"message": "Resume deleted successfully",
	})

	slog.Info("Resume deleted", "resume_id", resumeID, "user_id", user.ID)
}
