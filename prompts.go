package lensmcp

import "fmt"

// ReportPrompt returns the prompt template guiding an AI agent through a
// structured analysis report for one table.
func ReportPrompt(tableName, metrics string) string {
	if metrics == "" {
		metrics = "all"
	}
	return fmt.Sprintf(`Create a comprehensive report for the '%s' table:

1. Executive Summary:
   - Total rows
   - Key metrics overview
   - Date range (if applicable)

2. Data Distribution:
   - Show numeric column distributions (min, max, avg, median)
   - Show top categories for categorical columns
   - Identify any NULL values or data quality issues

3. Insights:
   - Identify trends if there's a date/timestamp column
   - Highlight any notable patterns or anomalies
   - Compare current period vs historical (if applicable)

4. Recommendations:
   - Data optimization suggestions
   - Potential analysis opportunities
   - Query optimization recommendations

Focus on: %s

Format the report professionally with clear sections and include visualizations where appropriate.
Use the available tools to query the data and generate charts.`, tableName, metrics)
}

// QueryBuilderPrompt returns the prompt template for generating an optimized
// SQL query against one table. task is one of "explore", "aggregate",
// "trend", or "compare".
func QueryBuilderPrompt(tableName, task, conditions string) string {
	if task == "" {
		task = "explore"
	}
	condText := conditions
	if condText == "" {
		condText = "None specified"
	}
	whereClause := conditions
	if whereClause == "" {
		whereClause = "1=1"
	}
	return fmt.Sprintf(`Generate an optimized SQL query for the '%s' table:

Task Type: %s

Requirements:
- Use appropriate JOINs if multiple tables are needed
- Include relevant WHERE clauses: %s
- Add ORDER BY for meaningful sorting
- Use LIMIT to prevent excessive results (max 1000 rows)
- Include aggregate functions where appropriate (COUNT, SUM, AVG, etc.)

Best Practices:
- Use column aliases for clarity
- Add comments for complex logic
- Optimize for performance (avoid SELECT *)
- Consider using indexes

Example Structure:
SELECT
    column1 AS alias1,
    COUNT(*) as count,
    AVG(column2) as average
FROM %s
WHERE %s
GROUP BY column1
ORDER BY count DESC
LIMIT 100;

Generate the appropriate query for the '%s' task.`, tableName, task, condText, tableName, whereClause, task)
}
