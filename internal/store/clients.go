package store

import (
	"context"
	"fmt"
	"time"

	"pantry-service/internal/apperror"
	"pantry-service/internal/models"
)

const clientColumns = `client_id, name, email, phone, address, household_size, language,
	points_per_visit, visits_per_period, created_at, last_visit`

// CreateClient inserts a client profile and its tags
func (s *Store) CreateClient(ctx context.Context, client *models.Client) error {
	if client.CreatedAt.IsZero() {
		client.CreatedAt = now()
	}

	return s.WithTx(ctx, func(tx *Store) error {
		_, err := tx.exec(ctx, `
			INSERT INTO clients (`+clientColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			client.ClientID, client.Name, client.Email, client.Phone, client.Address,
			client.HouseholdSize, client.Language, client.PointsPerVisit,
			client.VisitsPerPeriod, client.CreatedAt, client.LastVisit)
		if isUniqueViolation(err) {
			return apperror.Conflict("client already exists").With("client_id", client.ClientID)
		}
		if err != nil {
			return fmt.Errorf("failed to insert client: %w", err)
		}
		return tx.replaceClientTags(ctx, client)
	})
}

// GetClientByID retrieves a client with its tags
func (s *Store) GetClientByID(ctx context.Context, id string) (*models.Client, error) {
	var client models.Client
	err := s.get(ctx, &client, "SELECT "+clientColumns+" FROM clients WHERE client_id = ?", id)
	if isNoRows(err) {
		return nil, apperror.NotFound("client", id)
	}
	if err != nil {
		return nil, err
	}

	clients := []models.Client{client}
	if err := s.attachClientTags(ctx, clients); err != nil {
		return nil, err
	}
	return &clients[0], nil
}

// GetClients lists clients by id
func (s *Store) GetClients(ctx context.Context) ([]models.Client, error) {
	clients := []models.Client{}
	if err := s.selectAll(ctx, &clients, "SELECT "+clientColumns+" FROM clients ORDER BY client_id"); err != nil {
		return nil, err
	}
	if err := s.attachClientTags(ctx, clients); err != nil {
		return nil, err
	}
	return clients, nil
}

// UpdateClient overwrites a client's profile and tags
func (s *Store) UpdateClient(ctx context.Context, client *models.Client) error {
	return s.WithTx(ctx, func(tx *Store) error {
		n, err := tx.exec(ctx, `
			UPDATE clients SET name = ?, email = ?, phone = ?, address = ?, household_size = ?,
				language = ?, points_per_visit = ?, visits_per_period = ?
			WHERE client_id = ?`,
			client.Name, client.Email, client.Phone, client.Address, client.HouseholdSize,
			client.Language, client.PointsPerVisit, client.VisitsPerPeriod, client.ClientID)
		if err != nil {
			return fmt.Errorf("failed to update client: %w", err)
		}
		if n == 0 {
			return apperror.NotFound("client", client.ClientID)
		}
		return tx.replaceClientTags(ctx, client)
	})
}

// TouchLastVisit stamps the client's most recent completed visit
func (s *Store) TouchLastVisit(ctx context.Context, clientID string, at time.Time) error {
	n, err := s.exec(ctx, "UPDATE clients SET last_visit = ? WHERE client_id = ?", at, clientID)
	if err != nil {
		return fmt.Errorf("failed to update last visit: %w", err)
	}
	if n == 0 {
		return apperror.NotFound("client", clientID)
	}
	return nil
}

func (s *Store) attachClientTags(ctx context.Context, clients []models.Client) error {
	if len(clients) == 0 {
		return nil
	}
	ids := make([]string, len(clients))
	for i, c := range clients {
		ids[i] = c.ClientID
	}

	rows, err := s.loadTags(ctx, "client_tags", "client_id", ids)
	if err != nil {
		return err
	}
	for i := range clients {
		clients[i].Allergens = rows[clients[i].ClientID][models.TagKindAllergen]
		clients[i].DietaryPrefs = rows[clients[i].ClientID][models.TagKindDietary]
		if clients[i].Allergens == nil {
			clients[i].Allergens = models.NewTagSet()
		}
		if clients[i].DietaryPrefs == nil {
			clients[i].DietaryPrefs = models.NewTagSet()
		}
		clients[i].EligibilityGroups = rows[clients[i].ClientID][models.TagKindEligibility]
		if clients[i].EligibilityGroups == nil {
			clients[i].EligibilityGroups = models.NewTagSet()
		}
	}
	return nil
}

func (s *Store) replaceClientTags(ctx context.Context, client *models.Client) error {
	return s.replaceTags(ctx, "client_tags", "client_id", client.ClientID, map[models.TagKind]models.TagSet{
		models.TagKindAllergen:    client.Allergens,
		models.TagKindDietary:     client.DietaryPrefs,
		models.TagKindEligibility: client.EligibilityGroups,
	})
}
