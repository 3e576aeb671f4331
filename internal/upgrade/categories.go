package upgrade

// Indy/Askar category name pairs, per spec.md §4.5.
const (
	IndyKey                                = "Indy::Key"
	IndyKeyMetadata                        = "Indy::KeyMetadata"
	IndyMasterSecret                       = "Indy::MasterSecret"
	IndyDid                                = "Indy::Did"
	IndyDidMetadata                        = "Indy::DidMetadata"
	IndySchema                             = "Indy::Schema"
	IndyCredentialDefinition               = "Indy::CredentialDefinition"
	IndySchemaID                           = "Indy::SchemaId"
	IndyCredentialDefinitionPrivateKey     = "Indy::CredentialDefinitionPrivateKey"
	IndyCredentialDefinitionCorrectnessProof = "Indy::CredentialDefinitionCorrectnessProof"
	IndyRevocationRegistryDefinition       = "Indy::RevocationRegistryDefinition"
	IndyRevocationRegistryDefinitionPrivate = "Indy::RevocationRegistryDefinitionPrivate"
	IndyRevocationRegistry                 = "Indy::RevocationRegistry"
	IndyRevocationRegistryInfo             = "Indy::RevocationRegistryInfo"
	IndyCredential                         = "Indy::Credential"

	AskarKeys                     = "keys"
	AskarMasterSecret             = "master_secret"
	AskarDid                      = "did"
	AskarSchema                   = "schema"
	AskarCredentialDef            = "credential_def"
	AskarCredentialDefPrivate     = "credential_def_private"
	AskarCredentialDefKeyProof    = "credential_def_key_proof"
	AskarRevocationRegDef         = "revocation_reg_def"
	AskarRevocationRegDefPrivate  = "revocation_reg_def_private"
	AskarRevocationReg            = "revocation_reg"
	AskarRevocationRegInfo        = "revocation_reg_info"
	AskarCredential               = "credential"

	masterSecretDefaultName = "default"
)

// rawCategories are raw-value-copy categories: no companion records, no
// tag derivation.
var rawCategories = []struct {
	indy, askar string
}{
	{IndySchema, AskarSchema},
	{IndyRevocationRegistryDefinition, AskarRevocationRegDef},
	{IndyRevocationRegistryDefinitionPrivate, AskarRevocationRegDefPrivate},
	{IndyRevocationRegistry, AskarRevocationReg},
	{IndyRevocationRegistryInfo, AskarRevocationRegInfo},
}
