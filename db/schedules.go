package db

import (
	"context"
	"time"

	"github.com/ppacer/trends/timeutils"
)

// Schedule represents a row in schedules table.
type Schedule struct {
	DagId          string  `json:"dagId"`
	InsertTs       string  `json:"insertTs"`
	Event          string  `json:"event"`
	ScheduleTs     *string `json:"scheduleTs,omitempty"`
	NextScheduleTs string  `json:"nextScheduleTs"`
}

// ReadDagSchedules reads all schedule events for a given dag sorted from
// newest to oldest.
func (c *Client) ReadDagSchedules(ctx context.Context, dagId string) ([]Schedule, error) {
	query := `
		SELECT DagId, InsertTs, Event, ScheduleTs, NextScheduleTs
		FROM schedules
		WHERE DagId = ?
		ORDER BY InsertTs DESC
	`
	return readRows(ctx, c.dbConn, c.logger, parseScheduleRow, c.q(query),
		dagId)
}

// InsertDagSchedule inserts new event regarding DAG schedule.
func (c *Client) InsertDagSchedule(
	ctx context.Context, dagId, event, nextSchedule string, schedule *string,
) error {
	start := time.Now()
	insertTs := timeutils.ToString(timeutils.Now())
	c.logger.Debug("Start inserting new DAG schedule event", "dagId", dagId,
		"event", event, "scheduleTs", schedule, "nextScheduleTs", nextSchedule)
	query := `
		INSERT INTO schedules (DagId, InsertTs, Event, ScheduleTs, NextScheduleTs)
		VALUES (?, ?, ?, ?, ?)
	`
	_, iErr := c.dbConn.ExecContext(ctx, c.q(query), dagId, insertTs, event,
		schedule, nextSchedule)
	if iErr != nil {
		c.logger.Error("Failed to insert new DAG schedule event", "dagId",
			dagId, "event", event, "err", iErr.Error())
		return iErr
	}
	c.logger.Debug("Finished inserting new DAG schedule event", "dagId", dagId,
		"event", event, "duration", time.Since(start))
	return nil
}

func parseScheduleRow(row Scannable) (Schedule, error) {
	var s Schedule
	scanErr := row.Scan(&s.DagId, &s.InsertTs, &s.Event, &s.ScheduleTs,
		&s.NextScheduleTs)
	return s, scanErr
}
