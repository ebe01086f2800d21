package handlers

import (
	"bytes"
	"context"
	"errors"
	"html/template"
	"io"
	"net/http"
	"slices"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"github.com/snappy-loop/snippets/internal/markup"
	"github.com/snappy-loop/snippets/internal/models"
	"github.com/snappy-loop/snippets/internal/script"
	"github.com/snappy-loop/snippets/internal/services"
)

const maxPageArtifactBytes = 1 << 20

// formWarning is shown when required inputs are missing.
const formWarning = "Please fill all details, select books, and enter questions."

// formValues echoes the submitted form back into the page.
type formValues struct {
	Name             string
	Age              int
	Grade            string
	SelfRating       string
	ExplanationStyle string
	PodcastType      string
	Books            []string
	Questions        string
}

func (f formValues) HasBook(title string) bool {
	return slices.Contains(f.Books, title)
}

type indexPage struct {
	Books             []string
	Grades            []string
	SelfRatings       []string
	ExplanationStyles []string
	PodcastTypes      []string
	MinAge, MaxAge    int
	Form              formValues
	Warning           string
	Detail            string
}

type resultPage struct {
	Run        models.Run
	Questions  string
	AudioURL   string
	Artifacts  []*models.ArtifactResponse
	Answers    template.HTML
	Transcript []script.Line
}

func (p resultPage) Done() bool { return p.Run.Terminal() }

func (h *Handler) newIndexPage(form formValues) indexPage {
	return indexPage{
		Books:             h.runs.Catalog().Books,
		Grades:            models.Grades,
		SelfRatings:       models.SelfRatings,
		ExplanationStyles: models.ExplanationStyles,
		PodcastTypes:      models.PodcastTypes,
		MinAge:            models.MinAge,
		MaxAge:            models.MaxAge,
		Form:              form,
	}
}

func defaultForm() formValues {
	return formValues{
		Age:              16,
		Grade:            models.Grades[0],
		SelfRating:       models.SelfRatings[0],
		ExplanationStyle: models.ExplanationStyles[0],
		PodcastType:      models.PodcastTypes[0],
	}
}

// Index handles GET /
func (h *Handler) Index(w http.ResponseWriter, r *http.Request) {
	renderPage(w, http.StatusOK, "index", h.newIndexPage(defaultForm()))
}

// GenerateForm handles POST /generate: it runs the whole pipeline before answering and renders
// the podcast player, or the form again with a warning.
func (h *Handler) GenerateForm(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		page := h.newIndexPage(defaultForm())
		page.Warning = formWarning
		renderPage(w, http.StatusBadRequest, "index", page)
		return
	}
	form := readForm(r)
	req := &models.CreateRunRequest{
		Profile: models.StudentProfile{
			Name:             form.Name,
			Age:              form.Age,
			Grade:            form.Grade,
			SelfRating:       form.SelfRating,
			ExplanationStyle: form.ExplanationStyle,
			PodcastType:      form.PodcastType,
		},
		QuestionsText: form.Questions,
		Books:         form.Books,
	}

	// Generation outlasts the server write timeout.
	if err := http.NewResponseController(w).SetWriteDeadline(time.Time{}); err != nil {
		log.Debug().Err(err).Msg("Could not clear write deadline")
	}

	status, err := h.runs.Generate(r.Context(), req)
	if err != nil {
		page := h.newIndexPage(form)
		code := http.StatusInternalServerError
		if errors.Is(err, models.ErrInputIncomplete) {
			code = http.StatusBadRequest
			page.Warning = formWarning
			page.Detail = err.Error()
		} else {
			log.Error().Err(err).Msg("Podcast generation failed")
			page.Warning = "Podcast generation failed. Please try again."
		}
		renderPage(w, code, "index", page)
		return
	}

	code := http.StatusOK
	if status.Run.Status == models.RunStatusFailed {
		code = http.StatusBadGateway
	}
	renderPage(w, code, "result", h.newResultPage(r.Context(), status))
}

// ViewRun handles GET /runs/{id}
func (h *Handler) ViewRun(w http.ResponseWriter, r *http.Request) {
	runID, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, "invalid run id", http.StatusBadRequest)
		return
	}
	status, err := h.runs.Get(r.Context(), runID)
	if errors.Is(err, models.ErrNotFound) {
		http.NotFound(w, r)
		return
	}
	if err != nil {
		log.Error().Err(err).Str("run_id", runID.String()).Msg("Failed to get run")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	renderPage(w, http.StatusOK, "result", h.newResultPage(r.Context(), status))
}

func (h *Handler) newResultPage(ctx context.Context, status *models.RunStatusResponse) resultPage {
	p := resultPage{
		Run:       status.Run,
		Questions: models.FormatQuestions(status.Run.Questions),
		Artifacts: status.Artifacts,
	}
	for _, a := range status.Artifacts {
		if a.Artifact.Name == models.ArtifactPodcast {
			p.AudioURL = a.DownloadURL
		}
	}
	if p.AudioURL == "" && status.Run.Status == models.RunStatusSucceeded {
		p.AudioURL = services.ArtifactPath(status.Run.ID, models.ArtifactPodcast)
	}

	if answers, ok := h.readText(ctx, status.Run.ID, models.ArtifactAnswers); ok {
		html, err := markup.ToHTML(answers)
		if err != nil {
			log.Warn().Err(err).Str("run_id", status.Run.ID.String()).Msg("Failed to render answers")
		} else {
			p.Answers = html
		}
	}
	if refined, ok := h.readText(ctx, status.Run.ID, models.ArtifactRefinedScript); ok {
		p.Transcript = script.Dialogue(refined)
	}
	return p
}

// readText returns a stored text artifact, or false when it is missing or unreadable.
func (h *Handler) readText(ctx context.Context, runID uuid.UUID, name string) (string, bool) {
	rc, _, err := h.runs.OpenArtifact(ctx, runID, name)
	if err != nil {
		if !errors.Is(err, models.ErrNotFound) {
			log.Warn().Err(err).Str("run_id", runID.String()).Str("artifact", name).Msg("Failed to open artifact")
		}
		return "", false
	}
	defer rc.Close()
	data, err := io.ReadAll(io.LimitReader(rc, maxPageArtifactBytes))
	if err != nil {
		log.Warn().Err(err).Str("run_id", runID.String()).Str("artifact", name).Msg("Failed to read artifact")
		return "", false
	}
	return string(data), true
}

func readForm(r *http.Request) formValues {
	age, _ := strconv.Atoi(r.PostForm.Get("age"))
	return formValues{
		Name:             r.PostForm.Get("name"),
		Age:              age,
		Grade:            r.PostForm.Get("grade"),
		SelfRating:       r.PostForm.Get("self_rating"),
		ExplanationStyle: r.PostForm.Get("explanation_style"),
		PodcastType:      r.PostForm.Get("podcast_type"),
		Books:            r.PostForm["books"],
		Questions:        r.PostForm.Get("questions"),
	}
}

// renderPage buffers the template so a template error can still produce a 500.
func renderPage(w http.ResponseWriter, status int, name string, data any) {
	var buf bytes.Buffer
	if err := executeTemplate(&buf, name, data); err != nil {
		log.Error().Err(err).Str("template", name).Msg("Failed to render page")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	w.Write(buf.Bytes())
}
