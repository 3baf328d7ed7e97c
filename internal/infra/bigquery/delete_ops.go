package bigquery

import (
	"context"
	"fmt"

	"cloud.google.com/go/bigquery"
)

// DeleteYearWithClient deletes every row of year with one DML statement and
// returns the affected row count. Rows still in the streaming buffer cannot
// be deleted by DML and make the job fail.
func DeleteYearWithClient(ctx context.Context, client *bigquery.Client, t Table, year string) (int, error) {
	q := client.Query(deleteYearQuery(t))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "year", Value: year},
	}

	job, err := q.Run(ctx)
	if err != nil {
		return 0, fmt.Errorf("DeleteYear: run query: %w", err)
	}

	status, err := job.Wait(ctx)
	if err != nil {
		return 0, fmt.Errorf("DeleteYear: wait for job: %w", err)
	}

	if err := status.Err(); err != nil {
		return 0, fmt.Errorf("DeleteYear: job error: %w", err)
	}

	if status.Statistics != nil {
		if qs, ok := status.Statistics.Details.(*bigquery.QueryStatistics); ok {
			return int(qs.NumDMLAffectedRows), nil
		}
	}
	return 0, nil
}
