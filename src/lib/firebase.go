package lib

import (
	"context"
	"log"
	"os"
	"path"
	"sync"

	"cloud.google.com/go/firestore"
	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/auth"
	"firebase.google.com/go/v4/messaging"
	"google.golang.org/api/option"
)

var (
	appMu          sync.Mutex
	innerApp       *firebase.App
	innerAuth      *auth.Client
	innerMessaging *messaging.Client
	innerFirestore *firestore.Client
)

func getOpts() option.ClientOption {
	secretsPath := os.Getenv("SECRETS_DIR")
	return option.WithCredentialsFile(path.Join(secretsPath, "admin-sdk-credentials.json"))
}

// GetFirebaseApp lazily initializes the admin app from the service account in SECRETS_DIR.
func GetFirebaseApp(ctx context.Context) (*firebase.App, error) {
	appMu.Lock()
	defer appMu.Unlock()
	if innerApp != nil {
		return innerApp, nil
	}
	var conf *firebase.Config
	if projectID := os.Getenv("FIREBASE_PROJECT_ID"); projectID != "" {
		conf = &firebase.Config{ProjectID: projectID}
	}
	app, err := firebase.NewApp(ctx, conf, getOpts())
	if err != nil {
		log.Printf("[Firebase] error initializing app: %s\n", err.Error())
		return nil, err
	}
	innerApp = app
	return app, nil
}

func GetFirebaseAuth() (*auth.Client, error) {
	if innerAuth != nil {
		return innerAuth, nil
	}
	app, err := GetFirebaseApp(context.Background())
	if err != nil {
		return nil, err
	}
	client, err := app.Auth(context.Background())
	if err != nil {
		log.Printf("[Firebase] error initializing Auth: %s\n", err.Error())
		return nil, err
	}
	innerAuth = client
	return client, nil
}

func GetFirebaseMessaging() (*messaging.Client, error) {
	if innerMessaging != nil {
		return innerMessaging, nil
	}
	app, err := GetFirebaseApp(context.Background())
	if err != nil {
		return nil, err
	}
	msg, err := app.Messaging(context.Background())
	if err != nil {
		log.Printf("[FCM] error initializing: %s\n", err.Error())
		return nil, err
	}
	innerMessaging = msg
	return msg, nil
}

// GetFirestore returns the document store client shared by the firestore repositories.
func GetFirestore(ctx context.Context) (*firestore.Client, error) {
	if innerFirestore != nil {
		return innerFirestore, nil
	}
	app, err := GetFirebaseApp(ctx)
	if err != nil {
		return nil, err
	}
	client, err := app.Firestore(ctx)
	if err != nil {
		log.Printf("[Firestore] error initializing client: %s\n", err.Error())
		return nil, err
	}
	innerFirestore = client
	return client, nil
}
