package tasks

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"time"

	"greendrake/chambers/internal/config"
	"greendrake/chambers/internal/email"
	"greendrake/chambers/internal/metrics"
	"greendrake/chambers/internal/services"
	"greendrake/chambers/internal/storage"

	"github.com/hibiken/asynq"
	"github.com/nfnt/resize"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// TaskType defines the type of a background task.
const (
	TypeEmailDelivery    = "email:deliver"
	TypeSignatureProcess = "signature:process"
	TypeOutstandingScan  = "scan:outstanding"
	TypeInstallmentScan  = "scan:installments"
)

const (
	QueueCritical = "critical"
	QueueDefault  = "default"
	QueueImages   = "images"
)

// --- Task Client (Enqueuing tasks) ---

// RedisOpt derives the asynq connection from an existing go-redis client.
func RedisOpt(rdb *redis.Client) asynq.RedisClientOpt {
	o := rdb.Options()
	return asynq.RedisClientOpt{Addr: o.Addr, Password: o.Password, DB: o.DB}
}

func NewClient(rdb *redis.Client) *asynq.Client {
	return asynq.NewClient(RedisOpt(rdb))
}

// Enqueuer is the part of *asynq.Client the queue needs.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Queue hands emails and signature images to the background workers.
type Queue struct {
	client Enqueuer
}

var (
	_ services.IMailer         = (*Queue)(nil)
	_ services.ISignatureQueue = (*Queue)(nil)
)

func NewQueue(client Enqueuer) *Queue {
	return &Queue{client: client}
}

type EmailTaskPayload struct {
	To       []string               `json:"to"`
	Template email.Template         `json:"template"`
	Data     map[string]interface{} `json:"data"`
}

type SignatureTaskPayload struct {
	ProposalID string `json:"proposal_id"`
	Key        string `json:"key"`
}

func (q *Queue) Enqueue(ctx context.Context, tmpl email.Template, to []string, data map[string]interface{}) error {
	if len(to) == 0 {
		return email.ErrNoRecipients
	}
	payload, err := json.Marshal(EmailTaskPayload{To: to, Template: tmpl, Data: data})
	if err != nil {
		return fmt.Errorf("failed to marshal email task payload: %w", err)
	}
	task := asynq.NewTask(TypeEmailDelivery, payload, asynq.Queue(QueueCritical), asynq.MaxRetry(5))
	if _, err := q.client.EnqueueContext(ctx, task); err != nil {
		return fmt.Errorf("failed to enqueue %s email: %w", tmpl, err)
	}
	return nil
}

func (q *Queue) EnqueueSignature(ctx context.Context, proposalID primitive.ObjectID, key string) error {
	payload, err := json.Marshal(SignatureTaskPayload{ProposalID: proposalID.Hex(), Key: key})
	if err != nil {
		return fmt.Errorf("failed to marshal signature task payload: %w", err)
	}
	task := asynq.NewTask(TypeSignatureProcess, payload, asynq.Queue(QueueImages), asynq.MaxRetry(3))
	if _, err := q.client.EnqueueContext(ctx, task); err != nil {
		return fmt.Errorf("failed to enqueue signature %s: %w", key, err)
	}
	return nil
}

// --- Task Server (Processing tasks) ---

// TaskProcessor handles the processing of tasks.
type TaskProcessor struct {
	cfg             *config.Config
	emailSender     email.Sender
	storageService  storage.IS3Storage
	reminderService services.IReminderService
	log             zerolog.Logger
}

func NewTaskProcessor(
	cfg *config.Config,
	emailSender email.Sender,
	storageService storage.IS3Storage,
	reminderService services.IReminderService,
	log zerolog.Logger,
) *TaskProcessor {
	return &TaskProcessor{
		cfg:             cfg,
		emailSender:     emailSender,
		storageService:  storageService,
		reminderService: reminderService,
		log:             log.With().Str("component", "tasks").Logger(),
	}
}

// Mux registers every handler of the processor.
func (p *TaskProcessor) Mux() *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(TypeEmailDelivery, p.HandleEmailDeliveryTask)
	mux.HandleFunc(TypeOutstandingScan, p.HandleOutstandingScanTask)
	mux.HandleFunc(TypeInstallmentScan, p.HandleInstallmentScanTask)
	if p.storageService != nil {
		mux.HandleFunc(TypeSignatureProcess, p.HandleSignatureProcessTask)
	}
	mux.Use(observe)
	return mux
}

func observe(next asynq.Handler) asynq.Handler {
	return asynq.HandlerFunc(func(ctx context.Context, t *asynq.Task) error {
		err := next.ProcessTask(ctx, t)
		metrics.ObserveTask(t.Type(), err)
		return err
	})
}

// SetupServer configures an Asynq server. The caller runs it with the
// processor's Mux and shuts it down.
func SetupServer(rdb *redis.Client, log zerolog.Logger) *asynq.Server {
	log = log.With().Str("component", "asynq").Logger()
	return asynq.NewServer(
		RedisOpt(rdb),
		asynq.Config{
			Queues: map[string]int{
				QueueCritical: 6,
				QueueDefault:  3,
				QueueImages:   2,
			},
			Logger: zerologAdapter{log},
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				retried, _ := asynq.GetRetryCount(ctx)
				maxRetry, _ := asynq.GetMaxRetry(ctx)
				log.Error().Err(err).
					Str("type", task.Type()).
					Int("retried", retried).
					Int("max_retry", maxRetry).
					Msg("task failed")
			}),
		},
	)
}

// NewScheduler enqueues the reminder scans on their cron schedules.
func NewScheduler(rdb *redis.Client, cfg *config.Config, log zerolog.Logger) (*asynq.Scheduler, error) {
	scheduler := asynq.NewScheduler(RedisOpt(rdb), &asynq.SchedulerOpts{
		Location: time.UTC,
		Logger:   zerologAdapter{log.With().Str("component", "scheduler").Logger()},
	})
	entries := []struct {
		spec     string
		taskType string
	}{
		{cfg.OutstandingScanSchedule, TypeOutstandingScan},
		{cfg.InstallmentScanSchedule, TypeInstallmentScan},
	}
	for _, e := range entries {
		// Unique keeps a slow scan from stacking up behind itself.
		task := asynq.NewTask(e.taskType, nil, asynq.Queue(QueueDefault), asynq.MaxRetry(2), asynq.Unique(time.Hour))
		if _, err := scheduler.Register(e.spec, task); err != nil {
			return nil, fmt.Errorf("failed to schedule %s: %w", e.taskType, err)
		}
	}
	return scheduler, nil
}

// --- Task Handlers ---

func (p *TaskProcessor) HandleEmailDeliveryTask(ctx context.Context, t *asynq.Task) error {
	var payload EmailTaskPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal email task payload: %v: %w", err, asynq.SkipRetry)
	}
	if len(payload.To) == 0 {
		return fmt.Errorf("%w: %w", email.ErrNoRecipients, asynq.SkipRetry)
	}

	msg, err := email.Render(payload.Template, payload.To, payload.Data)
	if err != nil {
		return fmt.Errorf("failed to render email: %v: %w", err, asynq.SkipRetry)
	}
	if err := p.emailSender.Send(ctx, msg); err != nil {
		p.log.Warn().Err(err).Str("template", string(payload.Template)).Msg("email delivery failed")
		return err
	}
	p.log.Debug().Str("template", string(payload.Template)).Strs("to", payload.To).Msg("email delivered")
	return nil
}

func (p *TaskProcessor) HandleSignatureProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload SignatureTaskPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal signature task payload: %v: %w", err, asynq.SkipRetry)
	}
	log := p.log.With().Str("proposal_id", payload.ProposalID).Str("key", payload.Key).Logger()

	data, contentType, err := p.storageService.GetObject(ctx, payload.Key)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			log.Warn().Msg("signature object missing, upload likely never completed")
			return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
		}
		return err
	}

	maxSizeBytes := int64(p.cfg.SignatureMaxSizeMB) * 1024 * 1024
	if maxSizeBytes > 0 && int64(len(data)) > maxSizeBytes {
		log.Warn().Int("bytes", len(data)).Msg("signature exceeds max size")
		return fmt.Errorf("signature exceeds max size: %w", asynq.SkipRetry)
	}

	out, outType, changed, err := NormalizeSignature(data, uint(p.cfg.SignatureMaxWidth))
	if err != nil {
		log.Warn().Err(err).Str("content_type", contentType).Msg("signature could not be decoded")
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}
	if !changed {
		return nil
	}
	if err := p.storageService.PutObject(ctx, payload.Key, out, outType); err != nil {
		return err
	}
	log.Info().Int("bytes", len(out)).Msg("signature normalized")
	return nil
}

// NormalizeSignature shrinks the image to maxWidth keeping its aspect ratio
// and re-encodes it in its original format. changed is false when the image
// already fits.
func NormalizeSignature(data []byte, maxWidth uint) (out []byte, contentType string, changed bool, err error) {
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", false, fmt.Errorf("unsupported image format or corrupt image: %w", err)
	}
	contentType = "image/" + format
	if maxWidth == 0 || uint(img.Bounds().Dx()) <= maxWidth {
		return data, contentType, false, nil
	}

	resized := resize.Resize(maxWidth, 0, img, resize.Lanczos3)
	var buf bytes.Buffer
	switch format {
	case "png":
		err = png.Encode(&buf, resized)
	case "jpeg":
		err = jpeg.Encode(&buf, resized, &jpeg.Options{Quality: 90})
	default:
		return nil, "", false, fmt.Errorf("unsupported image format %s", format)
	}
	if err != nil {
		return nil, "", false, fmt.Errorf("failed to re-encode signature: %w", err)
	}
	return buf.Bytes(), contentType, true, nil
}

func (p *TaskProcessor) HandleOutstandingScanTask(ctx context.Context, t *asynq.Task) error {
	res, err := p.reminderService.CheckOutstandingInvoices(ctx)
	if err != nil {
		return err
	}
	p.logScan(res)
	return nil
}

func (p *TaskProcessor) HandleInstallmentScanTask(ctx context.Context, t *asynq.Task) error {
	res, err := p.reminderService.CheckInstallments(ctx)
	if err != nil {
		return err
	}
	p.logScan(res)
	return nil
}

func (p *TaskProcessor) logScan(res *services.ScanResult) {
	p.log.Info().
		Str("scan", res.Scan).
		Int("checked", res.Checked).
		Int("notified", res.Notified).
		Int("skipped", res.Skipped).
		Int("failed", res.Failed).
		Msg("scan finished")
}

// zerologAdapter satisfies asynq.Logger.
type zerologAdapter struct {
	log zerolog.Logger
}

func (a zerologAdapter) Debug(args ...interface{}) { a.log.Debug().Msg(fmt.Sprint(args...)) }
func (a zerologAdapter) Info(args ...interface{})  { a.log.Info().Msg(fmt.Sprint(args...)) }
func (a zerologAdapter) Warn(args ...interface{})  { a.log.Warn().Msg(fmt.Sprint(args...)) }
func (a zerologAdapter) Error(args ...interface{}) { a.log.Error().Msg(fmt.Sprint(args...)) }
func (a zerologAdapter) Fatal(args ...interface{}) { a.log.Fatal().Msg(fmt.Sprint(args...)) }
