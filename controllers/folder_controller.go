package controller

import (
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"mailsync/services"
)

type FolderController struct {
	folders  *services.FolderService
	contacts *services.ContactService
	log      logrus.FieldLogger
}

func NewFolderController(folders *services.FolderService, contacts *services.ContactService, log logrus.FieldLogger) *FolderController {
	return &FolderController{folders: folders, contacts: contacts, log: log}
}

// GetFolders lists the server folders with their message counts
func (f *FolderController) GetFolders(c *fiber.Ctx) error {
	folders, err := f.folders.List(c.UserContext(), accountID(c))
	if err != nil {
		return respondError(c, f.log, "get_folders", err, "Failed to get folders")
	}
	return c.JSON(folders)
}

func (f *FolderController) GetContacts(c *fiber.Ctx) error {
	contacts, err := f.contacts.List(c.UserContext(), accountID(c))
	if err != nil {
		return respondError(c, f.log, "get_contacts", err, "Failed to get contacts")
	}
	return c.JSON(contacts)
}
