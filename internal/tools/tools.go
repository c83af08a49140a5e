package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/clearlane/claimflow/pkg/models"
)

const dateLayout = "2006-01-02"

// Total loss threshold as a fraction of actual cash value.
const totalLossFraction = 0.8

// Odometer variance, in miles, tolerated before a reading is suspicious.
const allowedMileageVariance = 3000

// NewClaimRegistry returns a registry populated with every claim accessor
// tool. One registry serves all concurrent claims; the claim snapshot arrives
// per invocation.
func NewClaimRegistry() *Registry {
	r := New()
	for _, t := range claimTools() {
		// Registration of the built-in set cannot fail: names and
		// handlers are static.
		_ = r.Register(t)
	}
	return r
}

func jsonString(v any) (string, error) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode tool result: %w", err)
	}
	return string(b), nil
}

func formatDate(t time.Time) string {
	return t.Format(dateLayout)
}

func formatDatePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format(dateLayout)
	return &s
}

func claimTools() []Tool {
	return []Tool{
		{
			Desc: models.ToolDescriptor{
				Name:        "get_claim_basic_info",
				Description: "Get basic claim information including ID, dates, state, and damage summary.",
			},
			Handler: func(_ context.Context, c *models.Claim, _ map[string]any) (string, error) {
				return jsonString(struct {
					ClaimID           string `json:"claim_id"`
					IncidentDate      string `json:"incident_date"`
					ReportDate        string `json:"report_date"`
					State             string `json:"state"`
					DamageType        string `json:"damage_type"`
					DamageDescription string `json:"damage_description"`
				}{c.ClaimID, formatDate(c.IncidentDate), formatDate(c.ReportDate), c.State, c.DamageType, c.DamageDescription})
			},
		},
		{
			Desc: models.ToolDescriptor{
				Name:        "get_policy_information",
				Description: "Get policy dates, limits, suspension windows, and cancellation status.",
			},
			Handler: func(_ context.Context, c *models.Claim, _ map[string]any) (string, error) {
				return jsonString(struct {
					PolicyStartDate         string  `json:"policy_start_date"`
					PolicyEndDate           string  `json:"policy_end_date"`
					CoverageSuspensionStart *string `json:"coverage_suspension_start"`
					CoverageSuspensionEnd   *string `json:"coverage_suspension_end"`
					CancellationReason      string  `json:"cancellation_reason"`
					PerClaimLimit           int     `json:"per_claim_limit"`
					AnnualAggregateLimit    int     `json:"annual_aggregate_limit"`
					RemainingAggregateLimit int     `json:"remaining_aggregate_limit"`
				}{formatDate(c.PolicyStartDate), formatDate(c.PolicyEndDate), formatDatePtr(c.CoverageSuspensionStart),
					formatDatePtr(c.CoverageSuspensionEnd), c.CancellationReason, c.PerClaimLimit,
					c.AnnualAggregateLimit, c.RemainingAggregateLimit})
			},
		},
		{
			Desc: models.ToolDescriptor{
				Name:        "get_driver_information",
				Description: "Get driver license status, policy listing, exclusions, and use type.",
			},
			Handler: func(_ context.Context, c *models.Claim, _ map[string]any) (string, error) {
				return jsonString(struct {
					DriverName           string `json:"driver_name"`
					DriverLicenseStatus  string `json:"driver_license_status"`
					DriverListedOnPolicy bool   `json:"driver_listed_on_policy"`
					DriverExcluded       bool   `json:"driver_excluded"`
					DriverUnderInfluence bool   `json:"driver_under_influence"`
					DriverUseType        string `json:"driver_use_type"`
				}{c.DriverName, c.DriverLicenseStatus, c.DriverListedOnPolicy, c.DriverExcluded,
					c.DriverUnderInfluence, c.DriverUseType})
			},
		},
		{
			Desc: models.ToolDescriptor{
				Name:        "get_vehicle_information",
				Description: "Get vehicle identity, odometer readings, repair estimate, and value.",
			},
			Handler: func(_ context.Context, c *models.Claim, _ map[string]any) (string, error) {
				return jsonString(struct {
					VIN                string `json:"vin"`
					OdometerAtLoss     int    `json:"odometer_at_loss"`
					TelematicsOdometer int    `json:"telematics_odometer"`
					RepairEstimate     int    `json:"repair_estimate"`
					ActualCashValue    int    `json:"actual_cash_value"`
					AftermarketMods    bool   `json:"aftermarket_mods"`
					RecallActive       bool   `json:"recall_active"`
				}{c.VIN, c.OdometerAtLoss, c.TelematicsOdometer, c.RepairEstimate, c.ActualCashValue,
					c.AftermarketMods, c.RecallActive})
			},
		},
		{
			Desc: models.ToolDescriptor{
				Name:        "get_coverage_details",
				Description: "Get endorsement coverage details.",
			},
			Handler: func(_ context.Context, c *models.Claim, _ map[string]any) (string, error) {
				return jsonString(struct {
					RentalDaysAllowed int  `json:"endorsement_rental_days_allowed"`
					RentalDailyCap    int  `json:"endorsement_rental_daily_cap"`
					UMUIM             bool `json:"endorsement_um_uim"`
					DiminishedValue   bool `json:"endorsement_diminished_value"`
					RideshareUse      bool `json:"endorsement_rideshare_use"`
				}{c.EndorsementRentalDaysAllowed, c.EndorsementRentalDailyCap, c.EndorsementUMUIM,
					c.EndorsementDiminishedValue, c.EndorsementRideshareUse})
			},
		},
		{
			Desc: models.ToolDescriptor{
				Name:        "get_liability_information",
				Description: "Get fault and liability information.",
			},
			Handler: func(_ context.Context, c *models.Claim, _ map[string]any) (string, error) {
				return jsonString(struct {
					AtFaultParty            string `json:"at_fault_party"`
					InsuredLiabilityPercent int    `json:"insured_liability_percent"`
					ThirdPartyInsurer       string `json:"third_party_insurer"`
				}{c.AtFaultParty, c.InsuredLiabilityPercent, c.ThirdPartyInsurer})
			},
		},
		{
			Desc: models.ToolDescriptor{
				Name:        "get_rental_information",
				Description: "Get rental car and loss-of-use information.",
			},
			Handler: func(_ context.Context, c *models.Claim, _ map[string]any) (string, error) {
				return jsonString(struct {
					RentalDaysClaimed  int `json:"rental_days_claimed"`
					LossOfUseDailyRate int `json:"loss_of_use_daily_rate"`
					RentalDaysAllowed  int `json:"endorsement_rental_days_allowed"`
					RentalDailyCap     int `json:"endorsement_rental_daily_cap"`
				}{c.RentalDaysClaimed, c.LossOfUseDailyRate, c.EndorsementRentalDaysAllowed, c.EndorsementRentalDailyCap})
			},
		},
		{
			Desc: models.ToolDescriptor{
				Name:        "get_catastrophe_information",
				Description: "Get catastrophe event and flood-zone information.",
			},
			Handler: func(_ context.Context, c *models.Claim, _ map[string]any) (string, error) {
				return jsonString(struct {
					LossLocationFloodZone string `json:"loss_location_flood_zone"`
					CatEventCode          string `json:"cat_event_code"`
					DamageType            string `json:"damage_type"`
				}{c.LossLocationFloodZone, c.CatEventCode, c.DamageType})
			},
		},
		{
			Desc: models.ToolDescriptor{
				Name:        "get_documentation_info",
				Description: "Get documentation and injury report information.",
			},
			Handler: func(_ context.Context, c *models.Claim, _ map[string]any) (string, error) {
				return jsonString(struct {
					PoliceReportAttached bool   `json:"police_report_attached"`
					State                string `json:"state"`
					InjuriesReported     bool   `json:"injuries_reported"`
					PrimaryMedProvider   string `json:"primary_med_provider"`
				}{c.PoliceReportAttached, c.State, c.InjuriesReported, c.PrimaryMedProvider})
			},
		},
		{
			Desc: models.ToolDescriptor{
				Name:        "calculate_days_between_dates",
				Description: "Calculate the number of days between two dates.",
				Args: []models.ToolArg{
					{Name: "start_date", Type: "string", Description: "Start date in YYYY-MM-DD format", Required: true},
					{Name: "end_date", Type: "string", Description: "End date in YYYY-MM-DD format", Required: true},
				},
			},
			Handler: func(_ context.Context, _ *models.Claim, args map[string]any) (string, error) {
				start, err := dateArg(args, "start_date")
				if err != nil {
					return "", err
				}
				end, err := dateArg(args, "end_date")
				if err != nil {
					return "", err
				}
				days := int(end.Sub(start).Hours() / 24)
				return fmt.Sprintf("Days between %s and %s: %d", formatDate(start), formatDate(end), days), nil
			},
		},
		{
			Desc: models.ToolDescriptor{
				Name:        "calculate_days_since_policy_start",
				Description: "Calculate the number of days between policy start date and incident date.",
			},
			Handler: func(_ context.Context, c *models.Claim, _ map[string]any) (string, error) {
				days := int(c.IncidentDate.Sub(c.PolicyStartDate).Hours() / 24)
				return jsonString(struct {
					PolicyStartDate      string `json:"policy_start_date"`
					IncidentDate         string `json:"incident_date"`
					DaysSincePolicyStart int    `json:"days_since_policy_start"`
				}{formatDate(c.PolicyStartDate), formatDate(c.IncidentDate), days})
			},
		},
		{
			Desc: models.ToolDescriptor{
				Name:        "check_total_loss_threshold",
				Description: "Check whether the repair estimate meets the total loss threshold (80% of actual cash value).",
			},
			Handler: func(_ context.Context, c *models.Claim, _ map[string]any) (string, error) {
				threshold := float64(c.ActualCashValue) * totalLossFraction
				return jsonString(struct {
					RepairEstimate     int     `json:"repair_estimate"`
					ActualCashValue    int     `json:"actual_cash_value"`
					TotalLossThreshold float64 `json:"total_loss_threshold"`
					IsTotalLoss        bool    `json:"is_total_loss"`
				}{c.RepairEstimate, c.ActualCashValue, threshold, float64(c.RepairEstimate) >= threshold})
			},
		},
		{
			Desc: models.ToolDescriptor{
				Name:        "check_mileage_discrepancy",
				Description: "Check for a suspicious discrepancy between reported and telematics odometer readings.",
			},
			Handler: func(_ context.Context, c *models.Claim, _ map[string]any) (string, error) {
				discrepancy := c.OdometerAtLoss - c.TelematicsOdometer
				return jsonString(struct {
					OdometerAtLoss     int  `json:"odometer_at_loss"`
					TelematicsOdometer int  `json:"telematics_odometer"`
					Discrepancy        int  `json:"discrepancy"`
					AllowedVariance    int  `json:"allowed_variance"`
					IsSuspicious       bool `json:"is_suspicious"`
				}{c.OdometerAtLoss, c.TelematicsOdometer, discrepancy, allowedMileageVariance,
					discrepancy > allowedMileageVariance})
			},
		},
	}
}

func dateArg(args map[string]any, key string) (time.Time, error) {
	raw, ok := args[key]
	if !ok {
		return time.Time{}, fmt.Errorf("missing argument %q", key)
	}
	s, ok := raw.(string)
	if !ok {
		return time.Time{}, fmt.Errorf("argument %q must be a string date", key)
	}
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("argument %q: %w", key, err)
	}
	return t, nil
}
