package repository_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/pelino250/safeboda/internal/rider/domain"
	"github.com/pelino250/safeboda/internal/rider/repository"
)

func TestCreateAssignsIDAndDefaults(t *testing.T) {
	repo := repository.NewMemoryRepository()
	rider, err := repo.CreateRider(context.Background(), domain.Rider{PhoneNumber: "+250788800001"})
	require.NoError(t, err)
	require.NotEqual(t, uuid.Nil, rider.ID)
	require.Equal(t, domain.VerificationPending, rider.VerificationStatus)
	require.False(t, rider.CreatedAt.IsZero())

	fetched, err := repo.GetRiderByID(context.Background(), rider.ID)
	require.NoError(t, err)
	require.Equal(t, rider.PhoneNumber, fetched.PhoneNumber)
}

func TestListAvailableOnlyListable(t *testing.T) {
	repo := repository.NewMemoryRepository()
	ctx := context.Background()

	listed, err := repo.CreateRider(ctx, domain.Rider{
		PhoneNumber:        "+250788800001",
		Available:          true,
		VerificationStatus: domain.VerificationApproved,
	})
	require.NoError(t, err)
	_, err = repo.CreateRider(ctx, domain.Rider{
		PhoneNumber:        "+250788800002",
		Available:          true,
		VerificationStatus: domain.VerificationSuspended,
	})
	require.NoError(t, err)
	_, err = repo.CreateRider(ctx, domain.Rider{
		PhoneNumber:        "+250788800003",
		Available:          false,
		VerificationStatus: domain.VerificationApproved,
	})
	require.NoError(t, err)

	riders, err := repo.ListAvailable(ctx)
	require.NoError(t, err)
	require.Len(t, riders, 1)
	require.Equal(t, listed.ID, riders[0].ID)
}

func TestMutationsReturnNotFoundForUnknownID(t *testing.T) {
	repo := repository.NewMemoryRepository()
	ctx := context.Background()
	unknown := uuid.New()

	_, err := repo.GetRiderByID(ctx, unknown)
	require.ErrorIs(t, err, domain.ErrNotFound)
	_, err = repo.UpdateLocation(ctx, unknown, domain.GeoPoint{Lat: 1, Lng: 1})
	require.ErrorIs(t, err, domain.ErrNotFound)
	_, err = repo.SetAvailability(ctx, unknown, true)
	require.ErrorIs(t, err, domain.ErrNotFound)
	_, err = repo.SetVerification(ctx, unknown, domain.VerificationApproved, "")
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestUpdateLocationStoresCopy(t *testing.T) {
	repo := repository.NewMemoryRepository()
	ctx := context.Background()
	rider, err := repo.CreateRider(ctx, domain.Rider{PhoneNumber: "+250788800001"})
	require.NoError(t, err)

	point := domain.GeoPoint{Lat: -1.9441, Lng: 30.0619}
	updated, err := repo.UpdateLocation(ctx, rider.ID, point)
	require.NoError(t, err)
	require.NotNil(t, updated.Location)

	// Mutating the caller's point must not leak into the stored rider.
	point.Lat = 0
	fetched, err := repo.GetRiderByID(ctx, rider.ID)
	require.NoError(t, err)
	require.InDelta(t, -1.9441, fetched.Location.Lat, 1e-9)
}
