package queries_test

import (
	"context"
	"testing"
	"time"

	"freight/internal/adapters/out/postgres/deliveryrepo"
	"freight/internal/core/application/usecases/queries"
	"freight/internal/core/domain/model/delivery"
	"freight/internal/core/domain/model/kernel"

	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	gorm_postgres "gorm.io/driver/postgres"
	"gorm.io/gorm"
)

type GetAllDeliveriesQueryHandlerTestSuite struct {
	suite.Suite
	container *postgres.PostgresContainer
	db        *gorm.DB
	handler   queries.GetAllDeliveriesQueryHandler
}

func (suite *GetAllDeliveriesQueryHandlerTestSuite) SetupSuite() {
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

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	suite.Require().NoError(err)

	db, err := gorm.Open(gorm_postgres.Open(dsn), &gorm.Config{})
	suite.Require().NoError(err)
	suite.db = db

	suite.Require().NoError(db.AutoMigrate(&deliveryrepo.DeliveryDTO{}))

	suite.handler = queries.NewGetAllDeliveriesQueryHandler(db)
}

func (suite *GetAllDeliveriesQueryHandlerTestSuite) TearDownSuite() {
	if suite.container != nil {
		suite.Require().NoError(suite.container.Terminate(context.Background()))
	}
}

func (suite *GetAllDeliveriesQueryHandlerTestSuite) SetupTest() {
	suite.Require().NoError(suite.db.Exec("TRUNCATE TABLE deliveries").Error)
}

func (suite *GetAllDeliveriesQueryHandlerTestSuite) store(name string, createdAt time.Time) kernel.UUID {
	origin, err := kernel.NewAddress("origin", "Origin City 12345")
	suite.Require().NoError(err)
	destination, err := kernel.NewAddress("destination", "Dest City 67890")
	suite.Require().NoError(err)
	phone, err := kernel.NewPhone("+14155550100")
	suite.Require().NoError(err)

	id := kernel.NewUUID()
	d, err := delivery.NewDelivery(id, name, origin, destination, phone,
		createdAt.Unix()+3600, 3600, createdAt.UTC().Truncate(time.Microsecond))
	suite.Require().NoError(err)

	_, err = deliveryrepo.NewGormDeliveryRepository(suite.db).Create(context.Background(), d)
	suite.Require().NoError(err)
	return id
}

func (suite *GetAllDeliveriesQueryHandlerTestSuite) TestHandle_EmptyDatabase_ReturnsEmptySlice() {
	result, err := suite.handler.Handle(context.Background(), queries.NewGetAllDeliveriesQuery())

	suite.Require().NoError(err)
	suite.NotNil(result)
	suite.Empty(result)
}

func (suite *GetAllDeliveriesQueryHandlerTestSuite) TestHandle_ReturnsNewestFirst() {
	base := time.Now().Add(-time.Hour)
	oldest := suite.store("Oldest", base)
	newest := suite.store("Newest", base.Add(20*time.Minute))
	middle := suite.store("Middle", base.Add(10*time.Minute))

	result, err := suite.handler.Handle(context.Background(), queries.NewGetAllDeliveriesQuery())

	suite.Require().NoError(err)
	suite.Require().Len(result, 3)
	suite.Equal(newest.String(), result[0].ID)
	suite.Equal(middle.String(), result[1].ID)
	suite.Equal(oldest.String(), result[2].ID)

	suite.Equal("Newest", result[0].Name)
	suite.Equal(delivery.OnRoute, result[0].Status)
	suite.Equal("Origin City 12345", result[0].CurrentLocation)
	suite.Equal(int64(3600), result[0].CurrentRouteDurationSeconds)
}

func (suite *GetAllDeliveriesQueryHandlerTestSuite) TestHandle_ReflectsStatusUpdates() {
	id := suite.store("Pallets", time.Now())
	notified := true
	suite.Require().NoError(deliveryrepo.NewGormDeliveryRepository(suite.db).
		UpdateStatus(context.Background(), id, delivery.Delayed, &notified))

	result, err := suite.handler.Handle(context.Background(), queries.NewGetAllDeliveriesQuery())

	suite.Require().NoError(err)
	suite.Require().Len(result, 1)
	suite.Equal(delivery.Delayed, result[0].Status)
	suite.True(result[0].Notified)
}

func (suite *GetAllDeliveriesQueryHandlerTestSuite) TestHandle_RejectsUnconstructedQuery() {
	_, err := suite.handler.Handle(context.Background(), queries.GetAllDeliveriesQuery{})

	suite.Require().ErrorIs(err, queries.ErrGetAllDeliveriesQueryIsNotConstructed)
}

func TestGetAllDeliveriesQueryHandlerTestSuite(t *testing.T) {
	suite.Run(t, new(GetAllDeliveriesQueryHandlerTestSuite))
}
