// Copyright 2023 The ppacer Authors.
// Licensed under the Apache License, Version 2.0.
// See LICENSE file in the project root for full license information.

package scheduler

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/ppacer/trends/dag"
	"github.com/ppacer/trends/dag/schedule"
	"github.com/ppacer/trends/dag/tasklog"
	"github.com/ppacer/trends/db"
	"github.com/ppacer/trends/ds"
	"github.com/ppacer/trends/metrics"
	"github.com/ppacer/trends/timeutils"
	"github.com/ppacer/trends/version"
)

// Route patterns of the HTTP API.
const (
	RouteHealth          = "/health"
	RouteDagRunsLatest   = "/dagruns/latest"
	RouteDagRun          = "/dagruns/{runId:[0-9]+}"
	RouteDagRunTasks     = "/dagruns/{runId:[0-9]+}/tasks"
	RouteDagRunTaskLogs  = "/dagruns/{runId:[0-9]+}/tasks/{taskId}/logs"
	RouteDagRunTrigger   = "/dagruns/trigger"
	RouteMetrics         = "/metrics"
	defaultLatestRunsLen = 10
)

// HealthOutput is the response of health endpoint.
type HealthOutput struct {
	Status  string   `json:"status"`
	Version string   `json:"version"`
	Dags    []string `json:"dags"`
}

// TriggerInput is the request body of DAG run trigger endpoint. DagId can be
// omitted when there's exactly one DAG in the registry.
type TriggerInput struct {
	DagId string `json:"dagId"`
	Date  string `json:"date"`
}

// TriggerOutput is the response of DAG run trigger endpoint.
type TriggerOutput struct {
	DagId  string `json:"dagId"`
	ExecTs string `json:"execTs"`
}

// TaskLogsOutput is the response of task logs endpoint.
type TaskLogsOutput struct {
	RunId   int64            `json:"runId"`
	TaskId  string           `json:"taskId"`
	Retry   int              `json:"retry"`
	Records []tasklog.Record `json:"records"`
}

// API serves HTTP endpoints with DAG runs state, task logs and metrics. It
// also allows to trigger new DAG runs.
type API struct {
	ctx      context.Context
	dags     dag.Registry
	dbClient *db.Client
	runner   *DagRunner
	taskLogs tasklog.Factory
	metrics  *metrics.Metrics
	runCache ds.Cache[int64, db.DagRun]
	logger   *slog.Logger
	runs     sync.WaitGroup
}

// NewAPI creates new API. Context is used for DAG runs triggered via HTTP, so
// they are cancelled together with the scheduler. Metrics can be nil, then
// /metrics endpoint is not registered.
func NewAPI(
	ctx context.Context, dags dag.Registry, dbClient *db.Client,
	runner *DagRunner, taskLogs tasklog.Factory, m *metrics.Metrics,
	cacheLen int, logger *slog.Logger,
) *API {
	if logger == nil {
		logger = defaultLogger()
	}
	if taskLogs == nil {
		taskLogs = tasklog.NewDB(dbClient, nil, logger)
	}
	return &API{
		ctx:      ctx,
		dags:     dags,
		dbClient: dbClient,
		runner:   runner,
		taskLogs: taskLogs,
		metrics:  m,
		runCache: ds.NewLruCache[int64, db.DagRun](cacheLen),
		logger:   logger,
	}
}

// Handler returns HTTP handler with all API routes registered.
func (a *API) Handler() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc(RouteHealth, a.healthHandler).Methods(http.MethodGet)
	r.HandleFunc(RouteDagRunsLatest, a.latestDagRunsHandler).Methods(http.MethodGet)
	r.HandleFunc(RouteDagRunTrigger, a.triggerHandler).Methods(http.MethodPost)
	r.HandleFunc(RouteDagRun, a.dagRunHandler).Methods(http.MethodGet)
	r.HandleFunc(RouteDagRunTasks, a.dagRunTasksHandler).Methods(http.MethodGet)
	r.HandleFunc(RouteDagRunTaskLogs, a.taskLogsHandler).Methods(http.MethodGet)
	if a.metrics != nil {
		r.Handle(RouteMetrics, a.metrics.Handler()).Methods(http.MethodGet)
	}
	r.Use(a.loggingMiddleware)
	return r
}

func (a *API) healthHandler(w http.ResponseWriter, _ *http.Request) {
	dags := make([]string, 0, len(a.dags))
	for _, d := range a.dags.List() {
		dags = append(dags, string(d.Id))
	}
	sort.Strings(dags)
	out := HealthOutput{Status: "OK", Version: version.Version, Dags: dags}
	if err := encode(w, http.StatusOK, out); err != nil {
		a.logger.Error("Cannot encode response", "err", err.Error())
	}
}

// latestDagRunsHandler returns n latest DAG runs (query parameter n, default
// 10) of given DAG (query parameter dagId) or of all DAGs.
func (a *API) latestDagRunsHandler(w http.ResponseWriter, r *http.Request) {
	n := defaultLatestRunsLen
	if nStr := r.URL.Query().Get("n"); nStr != "" {
		parsed, err := strconv.Atoi(nStr)
		if err != nil || parsed < 1 {
			http.Error(w, "parameter n should be positive integer",
				http.StatusBadRequest)
			return
		}
		n = parsed
	}
	dagIds := make([]string, 0, len(a.dags))
	if dagId := r.URL.Query().Get("dagId"); dagId != "" {
		if _, err := a.dags.Get(dag.Id(dagId)); err != nil {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		dagIds = append(dagIds, dagId)
	} else {
		for _, d := range a.dags.List() {
			dagIds = append(dagIds, string(d.Id))
		}
	}

	runs := make([]db.DagRun, 0, n)
	for _, dagId := range dagIds {
		dagRuns, err := a.dbClient.ReadDagRuns(r.Context(), dagId, n)
		if err != nil {
			a.logger.Error("Cannot read DAG runs", "dagId", dagId, "err",
				err.Error())
			http.Error(w, "cannot read DAG runs", http.StatusInternalServerError)
			return
		}
		runs = append(runs, dagRuns...)
	}
	sort.Slice(runs, func(i, j int) bool { return runs[i].RunId > runs[j].RunId })
	if len(runs) > n {
		runs = runs[:n]
	}
	if err := encode(w, http.StatusOK, runs); err != nil {
		a.logger.Error("Cannot encode response", "err", err.Error())
	}
}

func (a *API) dagRunHandler(w http.ResponseWriter, r *http.Request) {
	runId, err := getPathValueInt64(r, "runId")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	dagRun, found, err := a.readDagRun(r.Context(), runId)
	if err != nil {
		http.Error(w, "cannot read DAG run", http.StatusInternalServerError)
		return
	}
	if !found {
		http.Error(w, fmt.Sprintf("DAG run %d not found", runId),
			http.StatusNotFound)
		return
	}
	if err := encode(w, http.StatusOK, dagRun); err != nil {
		a.logger.Error("Cannot encode response", "err", err.Error())
	}
}

func (a *API) dagRunTasksHandler(w http.ResponseWriter, r *http.Request) {
	runId, err := getPathValueInt64(r, "runId")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if _, found, err := a.readDagRun(r.Context(), runId); err != nil || !found {
		http.Error(w, fmt.Sprintf("DAG run %d not found", runId),
			http.StatusNotFound)
		return
	}
	tasks, err := a.dbClient.ReadDagRunTasks(r.Context(), runId)
	if err != nil {
		http.Error(w, "cannot read DAG run tasks",
			http.StatusInternalServerError)
		return
	}
	if err := encode(w, http.StatusOK, tasks); err != nil {
		a.logger.Error("Cannot encode response", "err", err.Error())
	}
}

// taskLogsHandler returns logs of a task attempt. Attempt is given by query
// parameter retry, by default the latest attempt is used.
func (a *API) taskLogsHandler(w http.ResponseWriter, r *http.Request) {
	runId, err := getPathValueInt64(r, "runId")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	taskId, err := getPathValueStr(r, "taskId")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	dagRun, found, err := a.readDagRun(r.Context(), runId)
	if err != nil || !found {
		http.Error(w, fmt.Sprintf("DAG run %d not found", runId),
			http.StatusNotFound)
		return
	}

	retry := -1
	if retryStr := r.URL.Query().Get("retry"); retryStr != "" {
		retry, err = strconv.Atoi(retryStr)
		if err != nil || retry < 0 {
			http.Error(w, "parameter retry should be non-negative integer",
				http.StatusBadRequest)
			return
		}
	} else {
		tasks, rErr := a.dbClient.ReadDagRunTasks(r.Context(), runId)
		if rErr != nil {
			http.Error(w, "cannot read DAG run tasks",
				http.StatusInternalServerError)
			return
		}
		for _, t := range tasks {
			if t.TaskId == taskId && t.Retry > retry {
				retry = t.Retry
			}
		}
		if retry < 0 {
			http.Error(w, fmt.Sprintf("task %s not found in DAG run %d",
				taskId, runId), http.StatusNotFound)
			return
		}
	}

	execTs, _ := timeutils.ParseDate(dagRun.ExecTs)
	tri := dag.TaskRunInfo{
		RunId:  runId,
		DagId:  dag.Id(dagRun.DagId),
		ExecTs: execTs,
		TaskId: taskId,
		Retry:  retry,
	}
	records, err := a.taskLogs.GetLogReader(tri).ReadAll(r.Context())
	if err != nil {
		http.Error(w, "cannot read task logs", http.StatusInternalServerError)
		return
	}
	out := TaskLogsOutput{
		RunId: runId, TaskId: taskId, Retry: retry, Records: records,
	}
	if err := encode(w, http.StatusOK, out); err != nil {
		a.logger.Error("Cannot encode response", "err", err.Error())
	}
}

// triggerHandler starts new DAG run for given logical date in the
// background. It responds with 202 Accepted without waiting for the run.
func (a *API) triggerHandler(w http.ResponseWriter, r *http.Request) {
	input, err := decode[TriggerInput](r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	date, err := timeutils.ParseDate(input.Date)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	d, err := a.triggeredDag(input.DagId)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	if a.runner.InProgress(d.Id, date) {
		http.Error(w, ErrRunInProgress.Error(), http.StatusConflict)
		return
	}
	if a.ctx.Err() != nil {
		http.Error(w, "scheduler is shutting down", http.StatusServiceUnavailable)
		return
	}

	execTs := timeutils.ToDateString(date)
	tick := timeutils.ToString(date)
	if sErr := a.dbClient.InsertDagSchedule(r.Context(), string(d.Id),
		schedule.ManuallyTriggered.String(), tick, &tick); sErr != nil {
		a.logger.Warn("Cannot insert DAG schedule event", "dagId",
			string(d.Id), "execTs", execTs, "err", sErr.Error())
	}
	a.runs.Add(1)
	go func() {
		defer a.runs.Done()
		_, runErr := a.runner.RunWithEvent(a.ctx, d, date,
			schedule.ManuallyTriggered)
		if runErr != nil {
			a.logger.Error("Triggered DAG run failed to start", "dagId",
				string(d.Id), "execTs", execTs, "err", runErr.Error())
		}
	}()
	a.logger.Info("New DAG run triggered externally", "dagId", string(d.Id),
		"execTs", execTs)
	out := TriggerOutput{DagId: string(d.Id), ExecTs: execTs}
	if err := encode(w, http.StatusAccepted, out); err != nil {
		a.logger.Error("Cannot encode response", "err", err.Error())
	}
}

// Wait blocks until all DAG runs triggered via the API are finished.
func (a *API) Wait() {
	a.runs.Wait()
}

func (a *API) triggeredDag(dagId string) (dag.Dag, error) {
	if dagId != "" {
		return a.dags.Get(dag.Id(dagId))
	}
	if len(a.dags) != 1 {
		return dag.Dag{}, errors.New("dagId is required when there's more than one DAG")
	}
	return a.dags.List()[0], nil
}

// readDagRun reads DAG run from cache or from the database. Only finished
// DAG runs are cached.
func (a *API) readDagRun(ctx context.Context, runId int64) (db.DagRun, bool, error) {
	if dagRun, cached := a.runCache.Get(runId); cached {
		return dagRun, true, nil
	}
	dagRun, err := a.dbClient.ReadDagRun(ctx, runId)
	if errors.Is(err, sql.ErrNoRows) {
		return db.DagRun{}, false, nil
	}
	if err != nil {
		a.logger.Error("Cannot read DAG run", "runId", runId, "err",
			err.Error())
		return db.DagRun{}, false, err
	}
	if status, pErr := dag.ParseRunStatus(dagRun.Status); pErr == nil && status.IsTerminal() {
		a.runCache.Put(runId, dagRun)
	}
	return dagRun, true, nil
}

func (a *API) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		a.logger.Debug("HTTP request", "method", r.Method, "path",
			r.URL.Path, "duration", time.Since(start))
	})
}

// getPathValueInt64 parses URL path argument and casts it into integer.
func getPathValueInt64(r *http.Request, argName string) (int64, error) {
	argValue, err := getPathValueStr(r, argName)
	if err != nil {
		return -1, err
	}
	argInt, castErr := strconv.ParseInt(argValue, 10, 64)
	if castErr != nil {
		return -1, fmt.Errorf("cannot cast parameter %s (%s) into integer",
			argName, argValue)
	}
	return argInt, nil
}

// getPathValueStr parses URL path argument and checks if it's not empty.
func getPathValueStr(r *http.Request, argName string) (string, error) {
	argValue := mux.Vars(r)[argName]
	if argValue == "" {
		return "", fmt.Errorf("parameter %s is unexpectedly empty", argName)
	}
	return argValue, nil
}
