package response_test

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/kiranshivaraju/matchscope/internal/api/response"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestJSON(t *testing.T) {
	w := httptest.NewRecorder()
	response.JSON(w, map[string]string{"name": "test"})

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	data := decode(t, w)["data"].(map[string]any)
	assert.Equal(t, "test", data["name"])
}

func TestAccepted(t *testing.T) {
	w := httptest.NewRecorder()
	response.Accepted(w, map[string]string{"job_id": "j1"})

	assert.Equal(t, http.StatusAccepted, w.Code)
	data := decode(t, w)["data"].(map[string]any)
	assert.Equal(t, "j1", data["job_id"])
}

func TestList(t *testing.T) {
	w := httptest.NewRecorder()
	response.List(w, []int64{555, 556}, 2)

	assert.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Len(t, body["data"].([]any), 2)
	assert.Equal(t, float64(2), body["meta"].(map[string]any)["count"])
}

func TestError(t *testing.T) {
	w := httptest.NewRecorder()
	response.Error(w, http.StatusConflict, "JOB_ACTIVE", "Target already has an active job", map[string]string{
		"job_id": "abc",
	})

	assert.Equal(t, http.StatusConflict, w.Code)
	errObj := decode(t, w)["error"].(map[string]any)
	assert.Equal(t, "JOB_ACTIVE", errObj["code"])
	assert.Equal(t, "Target already has an active job", errObj["message"])
	assert.NotNil(t, errObj["details"])
}

func TestError_NoDetails(t *testing.T) {
	w := httptest.NewRecorder()
	response.Error(w, http.StatusNotFound, "RESOURCE_NOT_FOUND", "Not found", nil)

	errObj := decode(t, w)["error"].(map[string]any)
	_, hasDetails := errObj["details"]
	assert.False(t, hasDetails)
}

func TestValidationError_FieldDetails(t *testing.T) {
	type req struct {
		TargetIDs []int64 `validate:"required,min=1"`
	}
	err := validator.New().Struct(req{})
	require.Error(t, err)

	w := httptest.NewRecorder()
	response.ValidationError(w, err)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	errObj := decode(t, w)["error"].(map[string]any)
	assert.Equal(t, "VALIDATION_ERROR", errObj["code"])
	details := errObj["details"].(map[string]any)
	assert.Equal(t, "required", details["targetids"])
}

func TestValidationError_PlainError(t *testing.T) {
	w := httptest.NewRecorder()
	response.ValidationError(w, errors.New("from must not be after to"))

	errObj := decode(t, w)["error"].(map[string]any)
	assert.Equal(t, "from must not be after to", errObj["message"])
	_, hasDetails := errObj["details"]
	assert.False(t, hasDetails)
}
