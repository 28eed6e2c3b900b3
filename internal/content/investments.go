package content

// InvestmentOption is one purchasable line item in a phase's catalog.
type InvestmentOption struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Cost int64  `json:"cost"`
}

var investmentCatalogs = map[string][]InvestmentOption{
	"r1_investments": {
		{ID: "rd1_inv_second_shift", Name: "Second production shift", Cost: 180_000},
		{ID: "rd1_inv_sales_team", Name: "Regional sales team", Cost: 140_000},
		{ID: "rd1_inv_quality_lab", Name: "Quality assurance lab", Cost: 120_000},
		{ID: "rd1_inv_brand_launch", Name: "Brand launch campaign", Cost: 160_000},
		{ID: "rd1_inv_lean_program", Name: "Lean operations program", Cost: 90_000},
	},
	"r2_investments": {
		{ID: "rd2_inv_warehouse", Name: "Distribution warehouse", Cost: 170_000},
		{ID: "rd2_inv_crm", Name: "Customer relationship platform", Cost: 110_000},
		{ID: "rd2_inv_supplier_deal", Name: "Long-term supplier contract", Cost: 130_000},
		{ID: "rd2_inv_export_push", Name: "Export market entry", Cost: 190_000},
	},
	"r2_flash_upgrade": {
		{ID: "rd2_ip_press_repair", Name: "Emergency press overhaul", Cost: 75_000},
		{ID: "rd2_ip_rush_hiring", Name: "Rush seasonal hiring", Cost: 60_000},
	},
	"r3_investments": {
		{ID: "rd3_inv_line_expansion", Name: "Second assembly line", Cost: 220_000},
		{ID: "rd3_inv_automation", Name: "Packaging automation", Cost: 180_000},
		{ID: "rd3_inv_ecommerce", Name: "Direct e-commerce channel", Cost: 150_000},
		{ID: "rd3_inv_training", Name: "Workforce upskilling", Cost: 100_000},
	},
}

// InvestmentCatalog returns the option catalog for an investment phase.
func InvestmentCatalog(phaseID string) []InvestmentOption {
	return investmentCatalogs[phaseID]
}

// InvestmentOptionByID searches every catalog; payoff reveals reference
// options without knowing which phase sold them.
func InvestmentOptionByID(optionID string) (InvestmentOption, bool) {
	for _, catalog := range investmentCatalogs {
		for _, opt := range catalog {
			if opt.ID == optionID {
				return opt, true
			}
		}
	}
	return InvestmentOption{}, false
}
