package boot

import (
	"context"
	"crewcomms/src/common"
	"crewcomms/src/config"
	"crewcomms/src/conversation"
	"crewcomms/src/db"
	"crewcomms/src/events"
	"crewcomms/src/jobmatch"
	"crewcomms/src/lib"
	awslib "crewcomms/src/lib/aws"
	"crewcomms/src/lib/mailer"
	"crewcomms/src/membership"
	"crewcomms/src/notification"
	"crewcomms/src/presence"
	fsrepo "crewcomms/src/repositories/firestore"
	"crewcomms/src/repositories/memory"
	"crewcomms/src/repositories/postgres"
	redisrepo "crewcomms/src/repositories/redis"
	"log"

	"github.com/sirupsen/logrus"
)

// Container holds the wired services for one process.
type Container struct {
	Config *config.Config
	Log    logrus.FieldLogger

	// Bus runs the in-process handlers. Publisher is what services emit to: the bus
	// itself locally, or Kafka, whose consumer feeds the bus.
	Bus       *events.LocalBus
	Publisher events.Publisher

	Crews         *membership.Service
	Presence      *presence.Tracker
	Conversations *conversation.Service
	Notifications *notification.Dispatcher
	Jobs          *jobmatch.Tracker

	Expiry      *lib.ExpiryScheduler
	Attachments *awslib.S3AttachmentStore
	Devices     *lib.DeviceTokens
	Audit       *postgres.AuditLog

	kafka *lib.KafkaBus
}

type repositories struct {
	crews         membership.Repository
	conversations conversation.Repository
	notifications notification.Repository
	jobs          jobmatch.Repository
	presence      presence.Store
}

func memoryRepositories() repositories {
	return repositories{
		crews:         memory.NewCrewRepository(),
		conversations: memory.NewConversationRepository(),
		notifications: memory.NewNotificationRepository(),
		jobs:          memory.NewJobNotificationRepository(),
		presence:      memory.NewPresenceStore(),
	}
}

// NewLocalContainer wires everything in memory with synchronous event delivery.
func NewLocalContainer(conf *config.Config, logger logrus.FieldLogger) *Container {
	c := &Container{Config: conf, Log: logger}
	c.Bus = events.NewLocalBus(logger)
	c.Publisher = c.Bus
	c.wire(memoryRepositories(), nil)
	return c
}

// NewContainer picks the backends named by the configuration.
func NewContainer(ctx context.Context, conf *config.Config, logger logrus.FieldLogger) (*Container, error) {
	c := &Container{Config: conf, Log: logger}
	c.Bus = events.NewLocalBus(logger)
	c.Publisher = c.Bus

	repos := memoryRepositories()
	if conf.StoreDriver == "firestore" {
		client, err := lib.GetFirestore(ctx)
		if err != nil {
			return nil, err
		}
		repos.crews = fsrepo.NewCrewRepositoryFS(client)
		repos.conversations = fsrepo.NewConversationRepositoryFS(client)
		repos.notifications = fsrepo.NewNotificationRepositoryFS(client)
		repos.jobs = fsrepo.NewJobNotificationRepositoryFS(client)
	}

	if conf.RedisHost != "" {
		if err := lib.PingRedis(ctx); err != nil {
			return nil, err
		}
		rd := lib.GetRedisClient()
		repos.presence = redisrepo.NewPresenceStore(rd)
		c.Devices = lib.NewDeviceTokens(rd)
	}

	if conf.KafkaBroker != "" {
		kb, err := lib.NewKafkaBus("crewcomms-"+conf.ApiEnv, conf.KafkaTopic)
		if err != nil {
			return nil, err
		}
		c.kafka = kb
		c.Publisher = kb
	}

	var tasks lib.JobTaskStore
	if conf.DatabaseDSN != "" {
		gdb := db.GetDb()
		if gdb == nil {
			log.Println("[Boot] database configured but unreachable; audit and persisted schedules disabled")
		} else {
			if err := db.Migrate(gdb); err != nil {
				return nil, err
			}
			c.Audit = postgres.NewAuditLog(gdb)
			tasks = postgres.NewJobTaskStore(gdb)
		}
	}

	if conf.AttachmentsBucket != "" {
		if client := awslib.GetS3Client(); client != nil {
			c.Attachments = awslib.NewS3AttachmentStore(client, conf.AttachmentsBucket)
		}
	}

	c.wire(repos, tasks)

	if c.Devices != nil {
		if fcm, err := lib.GetFirebaseMessaging(); err == nil {
			c.Notifications.SetPusher(lib.NewFCMPusher(c.Devices, fcm))
		} else {
			log.Printf("[Boot] push disabled: %s\n", err.Error())
		}
	}
	return c, nil
}

func (c *Container) wire(repos repositories, tasks lib.JobTaskStore) {
	conf := c.Config
	memberOpts := []membership.Option{membership.WithInviteTTL(config.DEFAULT_INVITE_TTL)}
	if c.Audit != nil {
		memberOpts = append(memberOpts, membership.WithAuditLog(c.Audit))
	}
	if lib.SMTPConfigured() {
		memberOpts = append(memberOpts, membership.WithMailer(mailer.NewInvitationMailer(conf.MailFrom, conf.AppURL, nil)))
	}
	c.Crews = membership.NewService(repos.crews, c.Publisher, c.Log.WithField("component", "membership"), memberOpts...)

	c.Conversations = conversation.NewService(repos.conversations, c.Crews, c.Publisher, c.Log.WithField("component", "conversation"))
	c.Presence = presence.NewTracker(repos.presence, c.Log.WithField("component", "presence"),
		presence.WithConversations(c.Conversations),
		presence.WithTypingTTL(conf.TypingTTL),
		presence.WithDebounce(conf.TypingDebounce),
		presence.WithHeartbeatTTL(conf.HeartbeatTTL),
	)
	c.Notifications = notification.NewDispatcher(repos.notifications, c.Crews, c.Log.WithField("component", "notification"))
	c.Jobs = jobmatch.NewTracker(repos.jobs, c.Crews, c.Publisher, c.Log.WithField("component", "jobmatch"),
		jobmatch.WithShareTTL(conf.JobShareTTL),
	)

	c.Expiry = lib.NewExpiryScheduler(tasks, c.Jobs.Expire)
	c.Jobs.SetScheduler(c.Expiry)

	c.Bus.Handle(c.Notifications.HandleEvent)
	c.Bus.Handle(c.Jobs.HandleEvent)
}

// Start runs the scheduler, restores persisted expiries, registers the sweeps and,
// with Kafka, the crew-events consumer.
func (c *Container) Start(ctx context.Context) error {
	sched, err := lib.GetScheduler()
	if err != nil {
		return err
	}
	sched.Start()

	if _, err := c.Expiry.RecoverQueuedJobs(ctx); err != nil {
		log.Printf("[Boot] could not recover queued jobs: %s\n", err.Error())
	}
	if _, err := lib.CreateCronJob("presence-sweep", c.Config.SweepInterval, c.sweepPresence); err != nil {
		return err
	}
	if _, err := lib.CreateCronJob("job-expiry-sweep", c.Config.SweepInterval, c.sweepExpiredJobs); err != nil {
		return err
	}

	if c.kafka != nil {
		if _, err := lib.KafkaCreateTopics(c.Config.KafkaTopic); err != nil {
			log.Printf("[Boot] create topic %s: %s\n", c.Config.KafkaTopic, err.Error())
		}
		if err := common.CrewEventsConsumer(ctx, c.Config.KafkaGroup, c.Config.KafkaTopic, c.Bus); err != nil {
			return err
		}
	}
	return nil
}

func (c *Container) sweepPresence() {
	if n := c.Presence.SweepStale(context.Background()); n > 0 {
		c.Log.WithField("count", n).Info("[Presence] marked stale users offline")
	}
}

func (c *Container) sweepExpiredJobs() {
	n, err := c.Jobs.ExpireDue(context.Background())
	if err != nil {
		lib.LogError(c.Log, "job_expiry_sweep", err, nil)
		return
	}
	if n > 0 {
		c.Log.WithField("count", n).Info("[Jobs] expired overdue shares")
	}
}

func (c *Container) Close() {
	if sched, err := lib.GetScheduler(); err == nil {
		if err := sched.Shutdown(); err != nil {
			log.Printf("An error has occurred while stopping Scheduler: %s\n", err.Error())
		}
	}
	if c.kafka != nil {
		c.kafka.Close()
	}
}
