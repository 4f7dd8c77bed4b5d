package mockapi

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raphaelgruber/oskour/internal/models"
)

func newTestServer(t *testing.T) (*Backend, *httptest.Server) {
	t.Helper()
	b := New(slog.New(slog.NewTextHandler(io.Discard, nil)))
	srv := httptest.NewServer(b.Handler())
	t.Cleanup(srv.Close)
	return b, srv
}

func postJSON(t *testing.T, url string, body any, out any) int {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func getJSON(t *testing.T, url string, out any) int {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func TestChatEchoesWithMessageNumber(t *testing.T) {
	b, srv := newTestServer(t)

	var first, second chatResponse
	status := postJSON(t, srv.URL+"/chat", chatRequest{Question: "Bonjour", SessionID: "s1", KnowledgeBase: "kb"}, &first)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Voici une réponse à votre question: 'Bonjour'. C'est votre message #1 dans cette session.", first.Answer)
	assert.Empty(t, first.MessageParts)
	assert.Equal(t, []string{"mock_file_1.txt"}, first.FilesUsed)

	postJSON(t, srv.URL+"/chat", chatRequest{Question: "Encore", SessionID: "s1"}, &second)
	assert.Contains(t, second.Answer, "message #3")
	assert.Greater(t, second.MessageID, first.MessageID, "ids are sequential")
	assert.Equal(t, 4, b.HistoryLen("s1"))
}

func TestChatSplitsApplicationAnswers(t *testing.T) {
	_, srv := newTestServer(t)

	var resp chatResponse
	postJSON(t, srv.URL+"/chat", chatRequest{Question: "Problème avec Artis", SessionID: "s1"}, &resp)
	require.Len(t, resp.MessageParts, 2)
	assert.Contains(t, resp.MessageParts[1], "Artis")
}

func TestChatAnswersFromArticle(t *testing.T) {
	_, srv := newTestServer(t)

	var resp chatResponse
	postJSON(t, srv.URL+"/chat", chatRequest{Question: "SAS refuse de se connecter", SessionID: "s1"}, &resp)
	require.GreaterOrEqual(t, len(resp.MessageParts), 4, "echo then one part per section")
	assert.Contains(t, resp.MessageParts[0], "message #1")
	assert.True(t, strings.HasPrefix(resp.MessageParts[1], "**Connexion impossible**"))
	assert.Contains(t, resp.FilesUsed, "articles/sas.md")
	assert.Equal(t, strings.Join(resp.MessageParts, "\n\n"), resp.Answer)
}

func TestChatValidation(t *testing.T) {
	_, srv := newTestServer(t)
	status := postJSON(t, srv.URL+"/chat", chatRequest{Question: "  ", SessionID: "s1"}, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, status)

	resp, err := http.Post(srv.URL+"/chat", "application/json", bytes.NewBufferString("{"))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestClearHistory(t *testing.T) {
	b, srv := newTestServer(t)

	var a ack
	postJSON(t, srv.URL+"/clear_history", sessionRequest{SessionID: "unknown"}, &a)
	assert.False(t, a.Success)
	assert.Equal(t, "Session not found", a.Message)

	postJSON(t, srv.URL+"/chat", chatRequest{Question: "Bonjour", SessionID: "s1"}, nil)
	postJSON(t, srv.URL+"/clear_history", sessionRequest{SessionID: "s1"}, &a)
	assert.True(t, a.Success)
	assert.Zero(t, b.HistoryLen("s1"))

	var resp chatResponse
	postJSON(t, srv.URL+"/chat", chatRequest{Question: "Re", SessionID: "s1"}, &resp)
	assert.Contains(t, resp.Answer, "message #1", "numbering restarts after clear")
}

func TestFeedback(t *testing.T) {
	b, srv := newTestServer(t)

	var resp chatResponse
	postJSON(t, srv.URL+"/chat", chatRequest{Question: "Bonjour", SessionID: "s1"}, &resp)

	status := postJSON(t, srv.URL+"/feedback", models.Feedback{MessageID: resp.MessageID, Rating: 5}, nil)
	assert.Equal(t, http.StatusOK, status)

	status = postJSON(t, srv.URL+"/feedback", models.Feedback{MessageID: resp.MessageID, Rating: 3}, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, status)

	status = postJSON(t, srv.URL+"/feedback", models.Feedback{MessageID: 999, Rating: 1}, nil)
	assert.Equal(t, http.StatusNotFound, status)

	require.Len(t, b.Feedback(), 1)
	assert.Equal(t, 5, b.Feedback()[0].Rating)
}

func TestTrendingCountsBySource(t *testing.T) {
	_, srv := newTestServer(t)

	ask := func(q string, source models.SourceScope) {
		postJSON(t, srv.URL+"/chat", chatRequest{Question: q, SessionID: "s", Source: source}, nil)
	}
	ask("Mot de passe oublié", models.SourceUser)
	ask("Webex ne démarre pas", models.SourceUser)
	ask("Webex ne démarre pas", models.SourceUser)
	ask("Réinitialiser un compte", models.SourceAdmin)

	var user []models.TrendingQuestion
	getJSON(t, srv.URL+"/trending_questions?limit=5&source=user", &user)
	require.Len(t, user, 2)
	assert.Equal(t, "Webex ne démarre pas", user[0].Question)
	assert.Equal(t, 2, user[0].Count)
	require.NotNil(t, user[0].Application)
	assert.Equal(t, "Webex", *user[0].Application)
	assert.Equal(t, "Mot de passe oublié", user[1].Question)

	var all []models.TrendingQuestion
	getJSON(t, srv.URL+"/trending_questions?limit=1&source=all", &all)
	require.Len(t, all, 1)

	status := getJSON(t, srv.URL+"/trending_questions?source=root", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, status)
}

func TestTrendingIgnoresPreviousDays(t *testing.T) {
	b, srv := newTestServer(t)
	yesterday := time.Now().AddDate(0, 0, -1)
	b.now = func() time.Time { return yesterday }
	postJSON(t, srv.URL+"/chat", chatRequest{Question: "Vieux", SessionID: "s"}, nil)
	b.now = time.Now

	var out []models.TrendingQuestion
	getJSON(t, srv.URL+"/trending_questions", &out)
	assert.Empty(t, out)
}

func TestStatistics(t *testing.T) {
	_, srv := newTestServer(t)
	for i := 0; i < 3; i++ {
		postJSON(t, srv.URL+"/chat", chatRequest{Question: "SAS est lent", SessionID: "s" + string(rune('a'+i))}, nil)
	}
	postJSON(t, srv.URL+"/chat", chatRequest{Question: "MyGesper bloqué", SessionID: "sx"}, nil)

	var stats models.ChatbotStats
	getJSON(t, srv.URL+"/chatbot_stats", &stats)
	assert.Equal(t, models.ChatbotStats{DailyMessages: 4, WeeklyMessages: 4, TotalMessages: 4, CurrentSessions: 4}, stats)

	var apps []models.ApplicationStat
	getJSON(t, srv.URL+"/application_stats", &apps)
	require.Len(t, apps, len(models.DefaultApplications))
	byID := map[string]models.ApplicationStat{}
	for _, a := range apps {
		byID[a.ID] = a
	}
	assert.Equal(t, 3, byID["sas"].IncidentCount)
	assert.Equal(t, 3, byID["sas"].UserCount)
	assert.Equal(t, models.StatusIncident, byID["sas"].Status)
	assert.Equal(t, 1, byID["mygesper"].IncidentCount)
	assert.Zero(t, byID["gesper"].IncidentCount, "longest application name wins")

	var hourly []models.HourlyIncidents
	getJSON(t, srv.URL+"/hourly_incidents", &hourly)
	require.Len(t, hourly, 24)
	assert.Equal(t, 4, hourly[23].Incidents)
}

func TestFailureInjection(t *testing.T) {
	b, srv := newTestServer(t)
	b.Fail("/chat", http.StatusServiceUnavailable)

	status := postJSON(t, srv.URL+"/chat", chatRequest{Question: "x", SessionID: "s"}, nil)
	assert.Equal(t, http.StatusServiceUnavailable, status)

	b.Recover()
	status = postJSON(t, srv.URL+"/chat", chatRequest{Question: "x", SessionID: "s"}, nil)
	assert.Equal(t, http.StatusOK, status)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", truncate("abc", 5))
	assert.Equal(t, "ab...", truncate("abcdefgh", 5))
	assert.Equal(t, "ab", truncate("abcdef", 2))
}
