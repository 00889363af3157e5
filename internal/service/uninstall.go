package service

import (
	"context"
	"fmt"

	"github.com/ZebulonRouseFrantzich/storeagent/internal/deploy"
	"github.com/ZebulonRouseFrantzich/storeagent/internal/report"
	"github.com/ZebulonRouseFrantzich/storeagent/internal/transaction"
)

// Uninstall removes the installed package of familyName. report.ErrNotFound
// is returned when nothing of that family is installed.
func (s *Service) Uninstall(ctx context.Context, familyName string) (*deploy.Package, error) {
	journal := s.newJournal(transaction.OperationUninstall, familyName)
	defer s.saveJournal(journal)

	driver := s.driver(journal)
	pkg, err := driver.Find(ctx, familyName)
	if err != nil {
		journal.Record(familyName, transaction.StageUninstall, transaction.StateFailed, "lookup", err)
		return nil, fmt.Errorf("%w: %s: %w", report.ErrNotFound, familyName, err)
	}

	s.logger.Info("removing package", "package", pkg.FullName)
	if err := driver.Remove(ctx, pkg.FullName); err != nil {
		journal.Record(pkg.FullName, transaction.StageUninstall, transaction.StateFailed, "", err)
		return pkg, fmt.Errorf("remove %s: %w", pkg.FullName, err)
	}
	journal.Record(pkg.FullName, transaction.StageUninstall, transaction.StateCompleted, "", nil)
	return pkg, nil
}
