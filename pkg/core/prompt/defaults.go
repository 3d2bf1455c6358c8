package prompt

const analystSystem = "You are a financial analyst preparing a statement analysis report. " +
	"Use only the data you are given. Never invent figures and never perform arithmetic the data does not already contain."

const extractionTemplate = `Extract the following information from the provided financial statements and output it as JSON with exactly this structure:

{
  "company_name": "",
  "reporting_period": "",
  "currency": "",
  "income_statement": {
    "net_sales": null,
    "cost_of_goods_sold": null,
    "gross_profit": null,
    "operating_expenses": null,
    "operating_income": null,
    "interest_expenses": null,
    "net_income": null
  },
  "balance_sheet": {
    "current_assets": null,
    "total_assets": null,
    "current_liabilities": null,
    "total_liabilities": null,
    "shareholders_equity": null,
    "average_inventory": null,
    "average_accounts_receivable": null
  },
  "notes": {
    "adj_ebitda_available": false,
    "adj_ebitda_details": "",
    "adj_working_capital_available": false,
    "adj_working_capital_details": ""
  }
}

Rules:
- If any information is not available, use null for that value. Do not use 0 for missing values.
- If numbers have units (thousands, millions), convert them to actual numbers and do not include units or currency symbols in the values.
- If you see values for multiple years, use the most recent year.
- For average values (average inventory, average accounts receivable), average the beginning and ending balances when both are given, otherwise use the most recent balance.
- Set adj_ebitda_available / adj_working_capital_available to true only when the document itself reports the adjusted figure, and copy its details.
- If the document cannot be read at all, respond with {"error": "unreadable"} instead.

Respond with the JSON object only.`

// Defaults returns fresh copies of the built-in prompts.
func Defaults() []*PromptTemplate {
	return []*PromptTemplate{
		{
			ID:             PromptIDs.Extraction,
			Name:           "Financial record extraction",
			Category:       "extraction",
			Description:    "Fills the canonical record from one statement document",
			SystemPrompt:   "You are a financial analyst tasked with extracting key data from financial statements. You return strict JSON.",
			UserPromptTmpl: extractionTemplate,
			Version:        "1",
		},
		{
			ID:           PromptIDs.BusinessOverview,
			Name:         "Business overview",
			Category:     "narrative",
			SystemPrompt: analystSystem,
			UserPromptTmpl: `Based on the extracted financial data below, provide a concise business overview.
If there is no data available, say that the financial information is insufficient to provide an overview.
Output only the business overview text.

Extracted Data:
{{.Data}}`,
			Variables: []PromptVariable{{Name: "Data", Type: "object", Required: true}},
			Version:   "1",
		},
		{
			ID:           PromptIDs.KeyFindings,
			Name:         "Key findings",
			Category:     "narrative",
			SystemPrompt: analystSystem,
			UserPromptTmpl: `Analyze the following extracted financial data and calculated ratios, and provide key findings
with focus on profitability, liquidity, solvency, and any notable trends.
A ratio_value of "Infinity" means the denominator was zero; null means the inputs were not reported.
If data is insufficient, say which specific information is missing.
Output only the key findings text.

Extracted Data:
{{.Data}}

Calculated Ratios:
{{.Ratios}}`,
			Variables: []PromptVariable{
				{Name: "Data", Type: "object", Required: true},
				{Name: "Ratios", Type: "object", Required: true},
			},
			Version: "1",
		},
		{
			ID:           PromptIDs.IncomeStatementOverview,
			Name:         "Income statement overview",
			Category:     "narrative",
			SystemPrompt: analystSystem,
			UserPromptTmpl: `Summarize the income statement below: revenue, cost structure, margins and bottom line.
Discuss only these figures and ratios. Output only the overview text.

Income Statement:
{{.Data}}

Income Statement Ratios:
{{.Ratios}}`,
			Variables: []PromptVariable{
				{Name: "Data", Type: "object", Required: true},
				{Name: "Ratios", Type: "object", Required: true},
			},
			Version: "1",
		},
		{
			ID:           PromptIDs.BalanceSheetOverview,
			Name:         "Balance sheet overview",
			Category:     "narrative",
			SystemPrompt: analystSystem,
			UserPromptTmpl: `Summarize the balance sheet below: liquidity, leverage and capital structure.
Discuss only these figures and ratios. Output only the overview text.

Balance Sheet:
{{.Data}}

Balance Sheet Ratios:
{{.Ratios}}`,
			Variables: []PromptVariable{
				{Name: "Data", Type: "object", Required: true},
				{Name: "Ratios", Type: "object", Required: true},
			},
			Version: "1",
		},
		{
			ID:           PromptIDs.AdjEBITDAOverview,
			Name:         "Adjusted EBITDA overview",
			Category:     "narrative",
			SystemPrompt: analystSystem,
			UserPromptTmpl: `The document reports an adjusted EBITDA. Explain the adjustments and what they imply, using only the details below.
Output only the overview text.

Adjusted EBITDA details:
{{.Details}}`,
			Variables: []PromptVariable{{Name: "Details", Type: "string", Required: true}},
			Version:   "1",
		},
		{
			ID:           PromptIDs.AdjWorkingCapitalOverview,
			Name:         "Adjusted working capital overview",
			Category:     "narrative",
			SystemPrompt: analystSystem,
			UserPromptTmpl: `The document reports an adjusted working capital. Explain the adjustments and what they imply, using only the details below.
Output only the overview text.

Adjusted working capital details:
{{.Details}}`,
			Variables: []PromptVariable{{Name: "Details", Type: "string", Required: true}},
			Version:   "1",
		},
		{
			ID:           PromptIDs.ChatAssistant,
			Name:         "Financial statement assistant",
			Category:     "chat",
			SystemPrompt: "You are a financial statement analysis assistant. Answer clearly and say when the data does not support an answer.",
			UserPromptTmpl: `{{if .Report}}Report under discussion:
{{.Report}}

{{end}}Conversation so far:
{{.Transcript}}

Reply to the last user message.`,
			Variables: []PromptVariable{
				{Name: "Report", Type: "object"},
				{Name: "Transcript", Type: "string", Required: true},
			},
			Version: "1",
		},
		{
			ID:       PromptIDs.Sentiment,
			Name:     "Financial sentiment",
			Category: "sentiment",
			SystemPrompt: "You are a financial sentiment classifier. You judge the tone of financial text " +
				"as an analyst would, from the figures and wording given. You return strict JSON.",
			UserPromptTmpl: `Classify the overall sentiment of the financial text below.

Respond with exactly this JSON object:
{"label": "positive" | "negative" | "neutral", "score": <confidence between 0 and 1>}

Text:
{{.Text}}`,
			Variables: []PromptVariable{{Name: "Text", Type: "string", Required: true}},
			Version:   "1",
		},
	}
}
