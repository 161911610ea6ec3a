package oauth

// Example of a full authorization flow:
//
//	cfg := oauth.Config{
//		ClientID:    "https://app.example.com/client-metadata.json",
//		RedirectURI: "https://app.example.com/oauth/callback",
//		Store:       storage.NewMemory(),
//		MasterKey:   masterKey, // 32 random bytes, kept outside source control
//	}
//	client, err := oauth.NewClient(ctx, cfg)
//	if err != nil {
//		return err
//	}
//
//	redirectURL, sessionID, err := client.Authorize(ctx, oauth.AuthorizeParams{Handle: "alice.bsky.social"})
//	if err != nil {
//		return err
//	}
//	// redirect the user's browser to redirectURL, persist sessionID against
//	// their browser session, and wait for the callback.
//
//	session, err := client.HandleCallback(ctx, callbackCode, callbackState, callbackIss)
//	if err != nil {
//		return err
//	}
//
//	headers, err := client.AuthHeaders(ctx, sessionID, "GET", "https://pds.example.com/xrpc/com.atproto.repo.getRecord")
//	if err != nil {
//		return err
//	}
