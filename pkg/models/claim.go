// Package models defines the shared data types for claim evaluation:
// the claim snapshot, agent verdicts and failures, and the workflow result.
package models

import (
	"fmt"
	"time"
)

// Claim is the immutable per-evaluation snapshot of one auto insurance claim.
// It is constructed once from the intake payload, shared read-only by every
// concurrent agent evaluating the claim, and never written after construction.
type Claim struct {
	ClaimID      string    `json:"claim_id"`
	IncidentDate time.Time `json:"incident_date"`
	ReportDate   time.Time `json:"report_date"`
	State        string    `json:"state"`

	// Policy fields.
	PolicyStartDate          time.Time  `json:"policy_start_date"`
	PolicyEndDate            time.Time  `json:"policy_end_date"`
	CoverageSuspensionStart  *time.Time `json:"coverage_suspension_start,omitempty"`
	CoverageSuspensionEnd    *time.Time `json:"coverage_suspension_end,omitempty"`
	CancellationReason       string     `json:"cancellation_reason,omitempty"`
	PerClaimLimit            int        `json:"per_claim_limit"`
	AnnualAggregateLimit     int        `json:"annual_aggregate_limit"`
	RemainingAggregateLimit  int        `json:"remaining_aggregate_limit"`

	// Endorsements.
	EndorsementRentalDaysAllowed int  `json:"endorsement_rental_days_allowed"`
	EndorsementRentalDailyCap    int  `json:"endorsement_rental_daily_cap"`
	EndorsementUMUIM             bool `json:"endorsement_um_uim"`
	EndorsementDiminishedValue   bool `json:"endorsement_diminished_value"`
	EndorsementRideshareUse      bool `json:"endorsement_rideshare_use"`

	// Driver fields.
	DriverName           string `json:"driver_name"`
	DriverLicenseStatus  string `json:"driver_license_status"`
	DriverListedOnPolicy bool   `json:"driver_listed_on_policy"`
	DriverExcluded       bool   `json:"driver_excluded"`
	DriverUnderInfluence bool   `json:"driver_under_influence"`
	DriverUseType        string `json:"driver_use_type"`

	// Vehicle and damage fields.
	VIN                string `json:"vin"`
	OdometerAtLoss     int    `json:"odometer_at_loss"`
	TelematicsOdometer int    `json:"telematics_odometer"`
	DamageDescription  string `json:"damage_description"`
	DamageType         string `json:"damage_type"`
	RepairEstimate     int    `json:"repair_estimate"`
	ActualCashValue    int    `json:"actual_cash_value"`
	AftermarketMods    bool   `json:"aftermarket_mods"`
	RecallActive       bool   `json:"recall_active"`

	// Documentation and catastrophe fields.
	PoliceReportAttached  bool   `json:"police_report_attached"`
	LossLocationFloodZone string `json:"loss_location_flood_zone"`
	CatEventCode          string `json:"cat_event_code,omitempty"`

	// Rental and loss-of-use fields.
	RentalDaysClaimed  int `json:"rental_days_claimed"`
	LossOfUseDailyRate int `json:"loss_of_use_daily_rate"`

	// Liability fields.
	AtFaultParty            string `json:"at_fault_party"`
	InsuredLiabilityPercent int    `json:"insured_liability_percent"`
	ThirdPartyInsurer       string `json:"third_party_insurer,omitempty"`

	// Injury fields.
	InjuriesReported   bool   `json:"injuries_reported"`
	PrimaryMedProvider string `json:"primary_med_provider,omitempty"`
}

// Validate checks the intake preconditions. A violation here is a schema
// problem in the caller's payload, not a workflow failure: the orchestrator
// rejects the claim before any agent starts.
func (c *Claim) Validate() error {
	if c == nil {
		return fmt.Errorf("claim is nil")
	}
	if c.ClaimID == "" {
		return fmt.Errorf("claim_id is required")
	}
	if c.IncidentDate.IsZero() {
		return fmt.Errorf("incident_date is required")
	}
	if c.ReportDate.IsZero() {
		return fmt.Errorf("report_date is required")
	}
	if c.PolicyStartDate.IsZero() || c.PolicyEndDate.IsZero() {
		return fmt.Errorf("policy_start_date and policy_end_date are required")
	}
	if c.RepairEstimate < 0 {
		return fmt.Errorf("repair_estimate must not be negative")
	}
	if c.ActualCashValue <= 0 {
		return fmt.Errorf("actual_cash_value must be positive")
	}
	if c.InsuredLiabilityPercent < 0 || c.InsuredLiabilityPercent > 100 {
		return fmt.Errorf("insured_liability_percent must be between 0 and 100")
	}
	return nil
}
