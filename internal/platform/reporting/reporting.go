package reporting

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"

	"github.com/hmis/hmis/internal/platform/auth"
)

// MeasureDefinition defines a reporting measure with its SQL query.
type MeasureDefinition struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	SQL         string   `json:"sql"`
	Parameters  []string `json:"parameters"`
}

// MeasureReport holds the results of evaluating a measure.
type MeasureReport struct {
	MeasureID   string                   `json:"measure_id"`
	MeasureName string                   `json:"measure_name"`
	GeneratedAt time.Time                `json:"generated_at"`
	Results     []map[string]interface{} `json:"results"`
	Parameters  map[string]string        `json:"parameters,omitempty"`
}

// PredefinedMeasures is the list of available reporting measures.
var PredefinedMeasures = []MeasureDefinition{
	{
		ID:          "patient-count",
		Name:        "Patient Count",
		Description: "Total number of registered patients, split by sex",
		SQL:         `SELECT COUNT(*) AS total, COALESCE(SUM(CASE WHEN gender = 'female' THEN 1 ELSE 0 END), 0) AS female, COALESCE(SUM(CASE WHEN gender = 'male' THEN 1 ELSE 0 END), 0) AS male FROM patient WHERE deleted_at IS NULL`,
		Parameters:  []string{},
	},
	{
		ID:          "births-by-month",
		Name:        "Births by Month",
		Description: "Registered births grouped by month of delivery",
		SQL:         `SELECT to_char(date_of_birth, 'YYYY-MM') AS month, COUNT(*) AS total FROM birth_record WHERE deleted_at IS NULL GROUP BY month ORDER BY month DESC`,
		Parameters:  []string{},
	},
	{
		ID:          "deaths-by-cause",
		Name:        "Deaths by Cause",
		Description: "Registered deaths grouped by recorded cause of death",
		SQL:         `SELECT COALESCE(cause_of_death, 'unknown') AS cause, COUNT(*) AS total FROM death_record WHERE deleted_at IS NULL GROUP BY cause ORDER BY total DESC`,
		Parameters:  []string{},
	},
	{
		ID:          "anc-visit-volume",
		Name:        "Antenatal Visit Volume",
		Description: "Antenatal visits grouped by visit number to show retention across the care schedule",
		SQL:         `SELECT visit_number, COUNT(*) AS total FROM antenatal_visit WHERE deleted_at IS NULL GROUP BY visit_number ORDER BY visit_number`,
		Parameters:  []string{},
	},
	{
		ID:          "immunization-coverage-by-vaccine",
		Name:        "Immunization Coverage by Vaccine",
		Description: "Administered doses grouped by vaccine and dose number",
		SQL:         `SELECT vaccine, dose_number, COUNT(*) AS total FROM immunization WHERE deleted_at IS NULL GROUP BY vaccine, dose_number ORDER BY vaccine, dose_number`,
		Parameters:  []string{},
	},
	{
		ID:          "disease-cases-by-status",
		Name:        "Disease Cases by Status",
		Description: "Notifiable disease cases grouped by disease and case status",
		SQL:         `SELECT disease, status, COUNT(*) AS total FROM disease_case WHERE deleted_at IS NULL GROUP BY disease, status ORDER BY disease, status`,
		Parameters:  []string{},
	},
	{
		ID:          "sync-activity-by-device",
		Name:        "Sync Activity by Device",
		Description: "Completed sync sessions and record volumes per registered device",
		SQL:         `SELECT d.device_id, d.device_name, COUNT(s.id) AS sessions, COALESCE(SUM(s.records_uploaded), 0) AS records_uploaded, COALESCE(SUM(s.records_downloaded), 0) AS records_downloaded FROM device d LEFT JOIN sync_session s ON s.device_id = d.device_id AND s.status = 'completed' GROUP BY d.device_id, d.device_name ORDER BY sessions DESC`,
		Parameters:  []string{},
	},
}

// Handler provides HTTP handlers for the reporting API.
type Handler struct {
	pool *pgxpool.Pool
}

// NewHandler creates a new reporting handler.
func NewHandler(pool *pgxpool.Pool) *Handler {
	return &Handler{pool: pool}
}

// RegisterRoutes registers the reporting API routes.
func (h *Handler) RegisterRoutes(api *echo.Group) {
	reportGroup := api.Group("/reports", auth.RequireRole("admin", "supervisor"))
	reportGroup.GET("/measures", h.ListMeasures)
	reportGroup.GET("/measures/:id/evaluate", h.EvaluateMeasure)
}

// ListMeasures returns all available measure definitions.
func (h *Handler) ListMeasures(c echo.Context) error {
	return c.JSON(http.StatusOK, PredefinedMeasures)
}

// EvaluateMeasure executes a measure's SQL and returns the results.
func (h *Handler) EvaluateMeasure(c echo.Context) error {
	measureID := c.Param("id")

	measure := FindMeasure(measureID)
	if measure == nil {
		return echo.NewHTTPError(http.StatusNotFound, "measure not found")
	}

	// Collect parameters from query string
	params := map[string]string{}
	for _, p := range measure.Parameters {
		if v := c.QueryParam(p); v != "" {
			params[p] = v
		}
	}

	results, err := h.executeSQL(c.Request().Context(), measure.SQL)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, fmt.Sprintf("query failed: %v", err))
	}

	report := MeasureReport{
		MeasureID:   measure.ID,
		MeasureName: measure.Name,
		GeneratedAt: time.Now(),
		Results:     results,
		Parameters:  params,
	}

	return c.JSON(http.StatusOK, report)
}

// executeSQL runs a SQL query and returns results as a slice of maps.
func (h *Handler) executeSQL(ctx context.Context, sql string) ([]map[string]interface{}, error) {
	rows, err := h.pool.Query(ctx, sql)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	fieldDescs := rows.FieldDescriptions()
	var results []map[string]interface{}

	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, err
		}

		row := make(map[string]interface{}, len(fieldDescs))
		for i, fd := range fieldDescs {
			row[string(fd.Name)] = values[i]
		}
		results = append(results, row)
	}

	if results == nil {
		results = []map[string]interface{}{}
	}

	return results, nil
}

// FindMeasure looks up a measure by ID.
func FindMeasure(id string) *MeasureDefinition {
	for i := range PredefinedMeasures {
		if PredefinedMeasures[i].ID == id {
			return &PredefinedMeasures[i]
		}
	}
	return nil
}
