package receiptrepo_test

import (
	"context"
	"testing"
	"time"

	"freight/internal/adapters/out/postgres/receiptrepo"
	"freight/internal/core/ports"
	"freight/internal/pkg/errs"

	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	postgresdriver "gorm.io/driver/postgres"
	"gorm.io/gorm"
)

type ReceiptRepositoryIntegrationTestSuite struct {
	suite.Suite
	container  *postgres.PostgresContainer
	db         *gorm.DB
	repository *receiptrepo.GormReceiptRepository
}

func (suite *ReceiptRepositoryIntegrationTestSuite) SetupSuite() {
	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"postgres:15-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	suite.Require().NoError(err)
	suite.container = container

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	suite.Require().NoError(err)

	db, err := gorm.Open(postgresdriver.Open(connStr), &gorm.Config{})
	suite.Require().NoError(err)
	suite.db = db

	suite.Require().NoError(db.AutoMigrate(&receiptrepo.ReceiptDTO{}))
}

func (suite *ReceiptRepositoryIntegrationTestSuite) SetupTest() {
	suite.Require().NoError(suite.db.Exec("TRUNCATE TABLE notification_receipts").Error)
	suite.repository = receiptrepo.NewGormReceiptRepository(suite.db)
}

func (suite *ReceiptRepositoryIntegrationTestSuite) TearDownSuite() {
	if suite.container != nil {
		suite.Require().NoError(suite.container.Terminate(context.Background()))
	}
}

func (suite *ReceiptRepositoryIntegrationTestSuite) receipt(key, body string) ports.NotificationReceipt {
	return ports.NotificationReceipt{
		IdempotencyKey:    key,
		DeliveryID:        "0b6d1c2e-6a53-4a53-9d0c-2f1d7c3e9a10",
		ContactPhone:      "+14155550100",
		Body:              body,
		ProviderMessageID: "SM123",
		SentAt:            time.Now().UTC().Truncate(time.Microsecond),
	}
}

func (suite *ReceiptRepositoryIntegrationTestSuite) TestFind_Missing() {
	found, err := suite.repository.Find(context.Background(), "absent")
	suite.Require().NoError(err)
	suite.Nil(found)
}

func (suite *ReceiptRepositoryIntegrationTestSuite) TestSaveAndFind() {
	ctx := context.Background()
	receipt := suite.receipt("key-1", "Your shipment is running 33 minutes late.")

	suite.Require().NoError(suite.repository.Save(ctx, receipt))

	found, err := suite.repository.Find(ctx, "key-1")
	suite.Require().NoError(err)
	suite.Require().NotNil(found)
	suite.Equal(receipt.Body, found.Body)
	suite.Equal(receipt.ProviderMessageID, found.ProviderMessageID)
	suite.True(receipt.SentAt.Equal(found.SentAt))
}

func (suite *ReceiptRepositoryIntegrationTestSuite) TestSave_DuplicateKeepsFirst() {
	ctx := context.Background()

	suite.Require().NoError(suite.repository.Save(ctx, suite.receipt("key-1", "first")))
	suite.Require().NoError(suite.repository.Save(ctx, suite.receipt("key-1", "second")))

	found, err := suite.repository.Find(ctx, "key-1")
	suite.Require().NoError(err)
	suite.Require().NotNil(found)
	suite.Equal("first", found.Body)
}

func (suite *ReceiptRepositoryIntegrationTestSuite) TestSave_RequiresKey() {
	err := suite.repository.Save(context.Background(), suite.receipt(" ", "body"))
	suite.Require().Error(err)
	suite.True(errs.IsValidation(err))
}

func TestReceiptRepositoryIntegrationTestSuite(t *testing.T) {
	suite.Run(t, new(ReceiptRepositoryIntegrationTestSuite))
}
