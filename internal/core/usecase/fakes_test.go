package usecase

import (
	"bytes"
	"context"
	"io"
	"sync"

	"github.com/screenware/reportflow/internal/core/domain"
)

type statusCall struct {
	status      domain.DocumentStatus
	failedStage domain.Stage
	errMsg      string
}

type docStoreFake struct {
	mu          sync.Mutex
	docs        map[string]*domain.Document
	createErr   error
	getErr      error
	listDocs    []domain.Document
	listTotal   int
	listErr     error
	statusErr   error
	statusCalls []statusCall
}

func newDocStoreFake(docs ...*domain.Document) *docStoreFake {
	f := &docStoreFake{docs: make(map[string]*domain.Document)}
	for _, d := range docs {
		f.docs[d.ID] = d
	}
	return f
}

func (f *docStoreFake) Create(_ context.Context, doc *domain.Document) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	copyDoc := *doc
	f.docs[doc.ID] = &copyDoc
	return nil
}

func (f *docStoreFake) GetByID(_ context.Context, id string) (*domain.Document, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, ok := f.docs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	copyDoc := *doc
	return &copyDoc, nil
}

func (f *docStoreFake) List(context.Context, domain.ListFilter) ([]domain.Document, int, error) {
	if f.listErr != nil {
		return nil, 0, f.listErr
	}
	return f.listDocs, f.listTotal, nil
}

func (f *docStoreFake) UpdateStatus(_ context.Context, id string, status domain.DocumentStatus, failedStage domain.Stage, errMessage string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statusCalls = append(f.statusCalls, statusCall{status: status, failedStage: failedStage, errMsg: errMessage})
	if doc, ok := f.docs[id]; ok {
		doc.Status = status
		doc.FailedStage = failedStage
		doc.ErrorMessage = errMessage
	}
	return f.statusErr
}

func (f *docStoreFake) lastStatus() statusCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.statusCalls) == 0 {
		return statusCall{}
	}
	return f.statusCalls[len(f.statusCalls)-1]
}

type stageStoreFake struct {
	mu        sync.Mutex
	appended  []domain.StageResult
	appendErr error
	current   map[domain.Stage]*domain.StageResult
	getErr    error
	nextGen   int
}

func (f *stageStoreFake) Append(_ context.Context, result *domain.StageResult) (int, error) {
	if f.appendErr != nil {
		return 0, f.appendErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextGen++
	result.Generation = f.nextGen
	f.appended = append(f.appended, *result)
	if f.current == nil {
		f.current = make(map[domain.Stage]*domain.StageResult)
	}
	copyResult := *result
	f.current[result.Stage] = &copyResult
	return f.nextGen, nil
}

func (f *stageStoreFake) GetCurrent(_ context.Context, _ string, stage domain.Stage) (*domain.StageResult, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	result, ok := f.current[stage]
	if !ok {
		return nil, domain.ErrNotFound
	}
	copyResult := *result
	return &copyResult, nil
}

type completeCall struct {
	documentID string
	generation int
	out        domain.PredictionOutput
	riskLevel  string
}

type predictionStoreFake struct {
	mu            sync.Mutex
	nextGen       int
	createErr     error
	current       *domain.Prediction
	getErr        error
	completeOK    bool
	completeErr   error
	completeCalls []completeCall
	failOK        bool
	failErr       error
	failMessages  []string
	statusWrites  []statusCall
	reviewErr     error
	reviewed      *domain.ReviewUpdate
}

func (f *predictionStoreFake) CreatePending(_ context.Context, documentID string) (*domain.Prediction, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextGen++
	return &domain.Prediction{DocumentID: documentID, Generation: f.nextGen, Status: domain.StagePending}, nil
}

func (f *predictionStoreFake) CompleteIfCurrent(_ context.Context, documentID string, generation int, out domain.PredictionOutput, riskLevel string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.completeCalls = append(f.completeCalls, completeCall{documentID: documentID, generation: generation, out: out, riskLevel: riskLevel})
	if f.completeOK && f.completeErr == nil {
		f.statusWrites = append(f.statusWrites, statusCall{status: domain.StatusPredictionCompleted})
	}
	return f.completeOK, f.completeErr
}

func (f *predictionStoreFake) FailIfCurrent(_ context.Context, _ string, _ int, errMessage string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failMessages = append(f.failMessages, errMessage)
	if f.failOK && f.failErr == nil {
		f.statusWrites = append(f.statusWrites, statusCall{status: domain.StatusPredictionFailed, failedStage: domain.StagePrediction, errMsg: errMessage})
	}
	return f.failOK, f.failErr
}

func (f *predictionStoreFake) GetCurrentByDocument(context.Context, string) (*domain.Prediction, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	if f.current == nil {
		return nil, domain.ErrNotFound
	}
	copyPred := *f.current
	return &copyPred, nil
}

func (f *predictionStoreFake) UpdateReview(_ context.Context, _ string, update domain.ReviewUpdate) (*domain.Prediction, error) {
	if f.reviewErr != nil {
		return nil, f.reviewErr
	}
	f.reviewed = &update
	copyPred := *f.current
	copyPred.ReviewStatus = update.Status
	return &copyPred, nil
}

type storageFake struct {
	mu      sync.Mutex
	saveErr error
	saved   map[string][]byte
}

func (f *storageFake) Save(_ context.Context, key string, data io.Reader) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	raw, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saved == nil {
		f.saved = make(map[string][]byte)
	}
	f.saved[key] = raw
	return nil
}

func (f *storageFake) Open(_ context.Context, key string) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	raw, ok := f.saved[key]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(raw)), nil
}

type queueFake struct {
	mu         sync.Mutex
	publishErr error
	dispatches []domain.PredictionDispatch
}

func (f *queueFake) PublishPredictionRequested(_ context.Context, dispatch domain.PredictionDispatch) error {
	if f.publishErr != nil {
		return f.publishErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dispatches = append(f.dispatches, dispatch)
	return nil
}

func (f *queueFake) SubscribePredictionRequested(context.Context, func(context.Context, domain.PredictionDispatch) error) error {
	return nil
}

type extractorFake struct {
	text string
	err  error
}

func (f *extractorFake) Extract(context.Context, *domain.Document) (domain.ExtractedText, error) {
	if f.err != nil {
		return domain.ExtractedText{}, f.err
	}
	return domain.ExtractedText{Text: f.text, PageCount: 1, Engine: "fake"}, nil
}

type structurerFake struct {
	fields domain.StructuredFields
	err    error
}

func (f *structurerFake) Structure(context.Context, string) (domain.StructuredFields, error) {
	if f.err != nil {
		return domain.StructuredFields{}, f.err
	}
	return f.fields, nil
}

type predictEngineFake struct {
	mu      sync.Mutex
	out     domain.PredictionOutput
	err     error
	calls   int
	started chan struct{}
	release chan struct{}
}

func (f *predictEngineFake) Predict(context.Context, domain.StructuredFields) (domain.PredictionOutput, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.started != nil {
		f.started <- struct{}{}
	}
	if f.release != nil {
		<-f.release
	}
	if f.err != nil {
		return domain.PredictionOutput{}, f.err
	}
	return f.out, nil
}

func (f *predictEngineFake) Ready(context.Context) (bool, error) { return true, nil }

func (f *predictEngineFake) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}
