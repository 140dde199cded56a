package pubcli

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli"

	"github.com/Badsworth/pfml-scripts-sub004/conf"
	"github.com/Badsworth/pfml-scripts-sub004/log"
	"github.com/Badsworth/pfml-scripts-sub004/pub/constants"
	"github.com/Badsworth/pfml-scripts-sub004/pub/database"
	"github.com/Badsworth/pfml-scripts-sub004/pub/extracts"
	"github.com/Badsworth/pfml-scripts-sub004/pub/files"
	"github.com/Badsworth/pfml-scripts-sub004/pub/metrics"
	"github.com/Badsworth/pfml-scripts-sub004/pub/outbound"
	"github.com/Badsworth/pfml-scripts-sub004/pub/payments"
	"github.com/Badsworth/pfml-scripts-sub004/pub/returns"
	"github.com/Badsworth/pfml-scripts-sub004/pub/writeback"
)

// App Name and usage.  Edit them here to prevent breaking tests
const Name = "pub"
const Usage = "Benefit payment reconciliation engine CLI"

func GetApp() *cli.App {
	return setUpApp()
}

func setUpApp() *cli.App {
	app := cli.NewApp()
	app.Name = Name
	app.Usage = Usage
	app.Version = constants.Version
	app.Commands = []cli.Command{
		{
			Name:     "import-extracts",
			Category: "Batch steps",
			Usage:    "Stage and convert the newest complete claims-system extract date group",
			Action: func(c *cli.Context) error {
				return runStep("ImportExtracts", log.Extracts, func(ctx context.Context, db *sql.DB) error {
					cfg, err := extracts.LoadConfig()
					if err != nil {
						return err
					}
					family, err := extracts.LoadFamily(cfg.FamilyFile)
					if err != nil {
						return err
					}
					importer := &extracts.Importer{
						Logger:  log.Extracts,
						Handler: newFileHandler(log.Extracts, cfg.ReceivedDir),
						DB:      db,
						Config:  cfg,
						Family:  family,
					}
					result, err := importer.ImportExtracts(ctx)
					if err != nil {
						return err
					}
					fmt.Fprintf(app.Writer, "Imported group %s: %d rows staged, %d payments.\n",
						result.GroupPrefix, result.StagedRows, result.Payments)
					return nil
				})
			},
		},
		{
			Name:     "process-payments",
			Category: "Batch steps",
			Usage:    "Validate staged payments and move the payable ones to the ready state",
			Action: func(c *cli.Context) error {
				return runStep("ProcessPayments", log.Payments, func(ctx context.Context, db *sql.DB) error {
					cfg, err := payments.LoadConfig()
					if err != nil {
						return err
					}
					processor := &payments.Processor{
						Logger:  log.Payments,
						DB:      db,
						Handler: newFileHandler(log.Payments, cfg.ReportDir),
						Config:  cfg,
					}
					result, err := processor.ProcessPayments(ctx)
					if err != nil {
						return err
					}
					fmt.Fprintf(app.Writer, "Processed payments: %d ready, %d sampled, %d rejected.\n",
						result.Ready, result.Sampled, result.DateMismatched+result.CapRejected)
					return nil
				})
			},
		},
		{
			Name:     "create-payment-files",
			Category: "Batch steps",
			Usage:    "Assemble the outbound NACHA and check issue files for ready payments",
			Action: func(c *cli.Context) error {
				return runStep("CreatePaymentFiles", log.Payments, func(ctx context.Context, db *sql.DB) error {
					cfg, err := outbound.LoadConfig()
					if err != nil {
						return err
					}
					creator := &outbound.Creator{
						Logger:  log.Payments,
						DB:      db,
						Handler: newFileHandler(log.Payments, cfg.OutboundDir),
						Config:  cfg,
					}
					result, err := creator.CreatePaymentFiles(ctx)
					if err != nil {
						return err
					}
					fmt.Fprintf(app.Writer, "Created payment files: %d ACH, %d prenotes, %d checks.\n",
						result.AchPayments, result.Prenotes, result.CheckPayments)
					return nil
				})
			},
		},
		{
			Name:     "process-ach-returns",
			Category: "Batch steps",
			Usage:    "Reconcile NACHA return files from the bank partner",
			Action: func(c *cli.Context) error {
				return runStep("ProcessAchReturns", log.Returns, func(ctx context.Context, db *sql.DB) error {
					processor, err := returnProcessor(db)
					if err != nil {
						return err
					}
					result, err := processor.ProcessAchReturns(ctx)
					if err != nil {
						return err
					}
					fmt.Fprintf(app.Writer, "Processed %d ACH return files: %d completed, %d rejected.\n",
						result.Files, result.Completed, result.Rejected)
					return nil
				})
			},
		},
		{
			Name:     "process-check-returns",
			Category: "Batch steps",
			Usage:    "Reconcile check payment return files from the bank partner",
			Action: func(c *cli.Context) error {
				return runStep("ProcessCheckReturns", log.Returns, func(ctx context.Context, db *sql.DB) error {
					processor, err := returnProcessor(db)
					if err != nil {
						return err
					}
					result, err := processor.ProcessCheckReturns(ctx)
					if err != nil {
						return err
					}
					fmt.Fprintf(app.Writer, "Processed %d check return files: %d completed, %d rejected, %d outstanding.\n",
						result.Files, result.Completed, result.Rejected, result.Outstanding)
					return nil
				})
			},
		},
		{
			Name:     "generate-writeback",
			Category: "Batch steps",
			Usage:    "Emit the writeback CSV carrying pending payment dispositions",
			Action: func(c *cli.Context) error {
				return runStep("GenerateWriteback", log.Writeback, func(ctx context.Context, db *sql.DB) error {
					cfg, err := writeback.LoadConfig()
					if err != nil {
						return err
					}
					emitter := &writeback.Emitter{
						Logger:  log.Writeback,
						DB:      db,
						Handler: newFileHandler(log.Writeback, cfg.WritebackDir),
						Config:  cfg,
					}
					result, err := emitter.GenerateWriteback(ctx)
					if err != nil {
						return err
					}
					fmt.Fprintf(app.Writer, "Wrote back %d dispositions.\n", result.Details)
					return nil
				})
			},
		},
	}
	return app
}

func returnProcessor(db *sql.DB) (*returns.Processor, error) {
	cfg, err := returns.LoadConfig()
	if err != nil {
		return nil, err
	}
	return &returns.Processor{
		Logger:  log.Returns,
		DB:      db,
		Handler: newFileHandler(log.Returns, cfg.AchReceivedDir),
		Config:  cfg,
	}, nil
}

// runStep wires the shared plumbing of every batch step: the database
// connection, the metrics timer, and failure logging.
func runStep(name string, logger logrus.FieldLogger, step func(ctx context.Context, db *sql.DB) error) error {
	db := database.GetDbConnection()
	defer db.Close()

	timer := metrics.GetTimer()
	defer timer.Close()
	ctx, close := metrics.NewParent(metrics.NewContext(context.Background(), timer), name)
	defer close()

	if err := step(ctx, db); err != nil {
		logger.Errorf("%s failed: %s", name, err)
		return err
	}
	return nil
}

// newFileHandler picks the handler matching the storage root. Directories
// beginning with s3:// use the S3 handler; everything else is local.
func newFileHandler(logger logrus.FieldLogger, dir string) files.FileHandler {
	if strings.HasPrefix(dir, "s3://") {
		return &files.S3FileHandler{
			Logger:        logger,
			Endpoint:      conf.GetEnv("PUB_S3_ENDPOINT"),
			AssumeRoleArn: conf.GetEnv("PUB_S3_ASSUME_ROLE_ARN"),
		}
	}
	return &files.LocalFileHandler{}
}
